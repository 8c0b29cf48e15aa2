package agent

import (
	"text/template"
	"time"
)

// Task is one unit of work in a pipeline: a description template executed by a
// stage, fed with the outputs of the tasks listed in Context.
type Task struct {
	ID             string   `yaml:"id"`
	Stage          string   `yaml:"stage"`
	Description    string   `yaml:"description"`
	Context        []string `yaml:"context,omitempty"`
	ExpectedOutput string   `yaml:"expected_output,omitempty"`
}

// TaskResult is the output of a single task within one run.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	StageID  string        `json:"stage_id"`
	Output   string        `json:"output"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// boundTask is a task resolved against the pipeline arena: its stage and its
// context references are indices, and its template is parsed.
type boundTask struct {
	Task
	stage      int
	context    []int
	tmpl       *template.Template
	inlinesCtx bool
}
