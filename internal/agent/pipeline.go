package agent

import (
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
)

// Pipeline is an immutable, validated sequence of tasks bound to stages.
//
// Tasks and stages live in slices and refer to each other by index, so the
// execution order is exactly the declaration order. A Pipeline is safe for
// concurrent use by multiple runs.
type Pipeline struct {
	stages []Stage
	tasks  []boundTask
}

// NewPipeline builds and validates a pipeline.
//
// It rejects:
//   - an empty task list
//   - empty or duplicate stage and task ids
//   - tasks bound to unknown stages
//   - context references to the task itself, to later tasks or to unknown tasks
//   - description templates that do not parse, or that read .Outputs of a
//     task missing from the context list
func NewPipeline(stages []Stage, tasks []Task) (*Pipeline, error) {
	if len(tasks) == 0 {
		return nil, invalidf("no tasks")
	}

	stageIdx := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.ID == "" {
			return nil, invalidf("stage %d: id is required", i)
		}
		if _, exists := stageIdx[s.ID]; exists {
			return nil, invalidf("duplicate stage id: %q", s.ID)
		}
		if strings.TrimSpace(s.Role) == "" {
			return nil, invalidf("stage %q: role is required", s.ID)
		}
		stageIdx[s.ID] = i
	}

	taskIdx := make(map[string]int, len(tasks))
	bound := make([]boundTask, 0, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return nil, invalidf("task %d: id is required", i)
		}
		if _, exists := taskIdx[t.ID]; exists {
			return nil, invalidf("duplicate task id: %q", t.ID)
		}
		si, ok := stageIdx[t.Stage]
		if !ok {
			return nil, invalidf("task %q: unknown stage %q", t.ID, t.Stage)
		}

		// Only tasks already seen are in taskIdx, which rules out forward
		// references and cycles in one pass.
		ctx := make([]int, 0, len(t.Context))
		for _, ref := range t.Context {
			if ref == t.ID {
				return nil, invalidf("task %q: references itself in context", t.ID)
			}
			ci, ok := taskIdx[ref]
			if !ok {
				if containsTask(tasks[i+1:], ref) {
					return nil, invalidf("task %q: context %q is declared later in the pipeline", t.ID, ref)
				}
				return nil, invalidf("task %q: unknown context task %q", t.ID, ref)
			}
			ctx = append(ctx, ci)
		}

		tmpl, err := template.New(t.ID).Option("missingkey=zero").Parse(t.Description)
		if err != nil {
			return nil, invalidf("task %q: %v", t.ID, err)
		}
		for _, ref := range outputRefs(tmpl) {
			if !slices.Contains(t.Context, ref) {
				return nil, invalidf("task %q: description reads output of %q, which is not in its context", t.ID, ref)
			}
		}

		taskIdx[t.ID] = i
		bound = append(bound, boundTask{
			Task:       cloneTask(t),
			stage:      si,
			context:    ctx,
			tmpl:       tmpl,
			inlinesCtx: strings.Contains(t.Description, ".Context") || strings.Contains(t.Description, ".Outputs"),
		})
	}

	return &Pipeline{
		stages: append([]Stage(nil), stages...),
		tasks:  bound,
	}, nil
}

// outputRefs lists the task ids a description reads through
// {{index .Outputs "id"}} or {{.Outputs.id}}.
func outputRefs(tmpl *template.Template) []string {
	var refs []string
	var walk func(n parse.Node)
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.IfNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.WithNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.TemplateNode:
			walk(n.Pipe)
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, c := range n.Cmds {
				walk(c)
			}
		case *parse.CommandNode:
			if len(n.Args) >= 3 && isIdentifier(n.Args[0], "index") && isOutputsField(n.Args[1]) {
				if key, ok := n.Args[2].(*parse.StringNode); ok {
					refs = append(refs, key.Text)
				}
			}
			for _, a := range n.Args {
				walk(a)
			}
		case *parse.FieldNode:
			if len(n.Ident) >= 2 && n.Ident[0] == "Outputs" {
				refs = append(refs, n.Ident[1])
			}
		}
	}
	for _, tt := range tmpl.Templates() {
		if tt.Tree != nil {
			walk(tt.Tree.Root)
		}
	}
	return refs
}

func isIdentifier(n parse.Node, name string) bool {
	id, ok := n.(*parse.IdentifierNode)
	return ok && id.Ident == name
}

func isOutputsField(n parse.Node) bool {
	f, ok := n.(*parse.FieldNode)
	return ok && len(f.Ident) == 1 && f.Ident[0] == "Outputs"
}

func containsTask(tasks []Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func cloneTask(t Task) Task {
	t.Context = append([]string(nil), t.Context...)
	return t
}

// Tasks returns a copy of the tasks in execution order.
func (p *Pipeline) Tasks() []Task {
	out := make([]Task, len(p.tasks))
	for i, t := range p.tasks {
		out[i] = cloneTask(t.Task)
	}
	return out
}

// Stage returns the stage with the given id.
func (p *Pipeline) Stage(id string) (Stage, bool) {
	for _, s := range p.stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// Len returns the number of tasks.
func (p *Pipeline) Len() int {
	return len(p.tasks)
}
