package governance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrDenied is returned by Check when the policy rejects an input.
var ErrDenied = errors.New("request denied by policy")

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Sources of evaluated input.
const (
	SourcePipeline = "pipeline"
	SourceChat     = "chat"
)

// Request contains the input to be evaluated before it reaches a completion service.
type Request struct {
	Source string
	ChatID string
	Text   string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates inputs against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies whole sources or texts matching a pattern;
// everything else is allowed.
type DefaultPolicyEngine struct {
	DeniedSources map[string]bool
	DeniedRegex   []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedSources: make(map[string]bool),
		DeniedRegex:   make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenySource(name string) {
	e.DeniedSources[name] = true
}

func (e *DefaultPolicyEngine) DenyPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedSources[req.Source] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("source '%s' is disabled by system policy", req.Source),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Text) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("input matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// Check evaluates req and converts a deny into an error wrapping ErrDenied.
func Check(ctx context.Context, engine PolicyEngine, req Request) error {
	res, err := engine.Evaluate(ctx, req)
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if res.Effect == EffectDeny {
		return fmt.Errorf("%w: %s", ErrDenied, res.Reason)
	}
	return nil
}
