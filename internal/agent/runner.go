package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rahul/medcrew/internal/governance"
	"github.com/rahul/medcrew/internal/observability"
)

// ErrEmptyCompletion is returned for a completion that came back blank. It is
// retried like any other completion failure.
var ErrEmptyCompletion = errors.New("completion service returned an empty response")

// RunnerConfig holds the dependencies of a Runner.
type RunnerConfig struct {
	Logger    *slog.Logger
	Events    *observability.Logger
	Completer Completer
	Policy    governance.PolicyEngine

	// MaxAttempts bounds the completion calls per task. Values below 2 disable retries.
	MaxAttempts int
	// NewBackOff builds the wait policy between attempts of one task.
	// Defaults to an exponential backoff starting at two seconds.
	NewBackOff func() backoff.BackOff
	// MaxContextChars caps each context output fed into a prompt. Zero disables the cap.
	MaxContextChars int
}

// Runner executes a pipeline, one task after another.
type Runner struct {
	cfg      RunnerConfig
	log      *slog.Logger
	pipeline *Pipeline
}

// NewRunner creates a runner for the given pipeline.
func NewRunner(p *Pipeline, cfg RunnerConfig) (*Runner, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = defaultBackOff
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log, pipeline: p}, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	return b
}

// Pipeline returns the pipeline the runner executes.
func (r *Runner) Pipeline() *Pipeline {
	return r.pipeline
}

// Run executes every task in declaration order against input.
//
// When a task fails after its last attempt, Run stops: no later task is invoked,
// and the returned report holds only the completed results (Partial is set)
// alongside a *StageError.
func (r *Runner) Run(ctx context.Context, input string) (*Report, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	if r.cfg.Policy != nil {
		if err := governance.Check(ctx, r.cfg.Policy, governance.Request{Source: governance.SourcePipeline, Text: input}); err != nil {
			return nil, err
		}
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Input:     input,
		StartedAt: time.Now(),
	}
	track := observability.Track(observability.RolePipeline, report.RunID, r.pipeline.Len())
	defer track.End()

	log := r.log.With("run", report.RunID)
	log.Info("pipeline run starting", "tasks", r.pipeline.Len())
	r.cfg.Events.LogRunStart(report.RunID, r.pipeline.Len())

	outputs := make([]string, r.pipeline.Len())
	for i := range r.pipeline.tasks {
		res, err := r.runTask(ctx, log, track, report.RunID, i, input, outputs)
		if err != nil {
			report.Partial = true
			report.Duration = time.Since(report.StartedAt)
			log.Error("pipeline run failed", "task", r.pipeline.tasks[i].ID, "completed", len(report.Results), "error", err)
			r.cfg.Events.LogRunComplete(report.RunID, len(report.Results), true, err)
			return report, err
		}
		outputs[i] = res.Output
		report.Results = append(report.Results, res)
	}

	report.Final = report.Results[len(report.Results)-1].Output
	report.Duration = time.Since(report.StartedAt)
	log.Info("pipeline run completed", "duration", report.Duration)
	r.cfg.Events.LogRunComplete(report.RunID, len(report.Results), false, nil)
	return report, nil
}

func (r *Runner) runTask(ctx context.Context, log *slog.Logger, track *observability.Tracker, runID string, i int, input string, outputs []string) (TaskResult, error) {
	t := r.pipeline.tasks[i]
	stage := r.pipeline.stages[t.stage]

	prompt, err := r.pipeline.render(i, input, outputs, r.cfg.MaxContextChars)
	if err != nil {
		return TaskResult{}, &StageError{TaskID: t.ID, StageID: stage.ID, Err: err}
	}
	system := stage.SystemFraming()

	log.Info("stage starting", "task", t.ID, "stage", stage.ID, "promptLen", len(prompt))

	start := time.Now()
	attempts := 0
	out, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		track.Step(t.ID, i, attempts)
		r.cfg.Events.LogStageStart(runID, t.ID, stage.ID, attempts)
		out, err := r.cfg.Completer.Complete(ctx, system, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", ErrEmptyCompletion
		}
		return out, nil
	},
		backoff.WithBackOff(r.cfg.NewBackOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("stage failed, retrying", "task", t.ID, "attempt", attempts, "wait", wait, "error", err)
			r.cfg.Events.LogStageRetry(runID, t.ID, attempts, err)
		}),
	)
	duration := time.Since(start)
	observability.StageDuration.WithLabelValues(stage.ID).Observe(duration.Seconds())

	if err != nil {
		observability.StageFailures.WithLabelValues(stage.ID).Inc()
		return TaskResult{}, &StageError{TaskID: t.ID, StageID: stage.ID, Attempts: attempts, Err: err}
	}

	log.Info("stage completed", "task", t.ID, "stage", stage.ID, "attempts", attempts, "duration", duration)
	r.cfg.Events.LogStageResult(runID, t.ID, stage.ID, attempts, duration, len(out))
	return TaskResult{
		TaskID:   t.ID,
		StageID:  stage.ID,
		Output:   out,
		Attempts: attempts,
		Duration: duration,
	}, nil
}
