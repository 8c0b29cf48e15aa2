package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPipeline is returned when a pipeline or crew definition is rejected at construction time.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrEmptyInput is returned when there is nothing to analyze: no clinical text and no document text.
	ErrEmptyInput = errors.New("empty input: provide clinical data or attach a document")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPipeline, fmt.Sprintf(format, args...))
}

// StageError is the terminal error of a pipeline run. It carries the task that
// failed and unwraps to the completion service error.
type StageError struct {
	TaskID   string
	StageID  string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("task %q (stage %q) failed after %d attempt(s): %v", e.TaskID, e.StageID, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
