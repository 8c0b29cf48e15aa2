package agent

import (
	"context"
	"sync"
)

type completion struct {
	System string
	Prompt string
}

// recorder is a Completer that records every call and answers from a script.
type recorder struct {
	mu      sync.Mutex
	calls   []completion
	respond func(n int, system, prompt string) (string, error)
}

func (r *recorder) Complete(_ context.Context, system, prompt string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, completion{System: system, Prompt: prompt})
	n := len(r.calls)
	r.mu.Unlock()
	if r.respond == nil {
		return "ok", nil
	}
	return r.respond(n, system, prompt)
}

func (r *recorder) Calls() []completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]completion(nil), r.calls...)
}
