package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/observability"
)

// Analyzer runs the pipeline for one case. *agent.Runner satisfies it.
type Analyzer interface {
	Run(ctx context.Context, input string) (*agent.Report, error)
}

// Config holds the configuration for a batch Runner.
type Config struct {
	Logger   *slog.Logger
	Analyzer Analyzer
	// Delay separates consecutive cases, to stay under provider rate limits.
	// With Concurrency 1 it is counted from the end of the previous case,
	// otherwise from its start.
	Delay time.Duration
	// Concurrency bounds the cases analyzed at the same time. Defaults to 1.
	Concurrency int
}

// Runner evaluates a dataset case by case.
type Runner struct {
	cfg Config
	log *slog.Logger
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log}, nil
}

// Run analyzes every case and returns one result per case, in input order.
// A failed case never aborts the batch; its error is kept in the result.
// Cancelling ctx stops submitting new cases; the cases not started are
// reported with the context error.
func (r *Runner) Run(ctx context.Context, cases []Case) []Result {
	pool := pond.NewResultPool[Result](r.cfg.Concurrency)
	defer pool.StopAndWait()

	track := observability.Track(observability.RoleBatch, "batch", len(cases))
	defer track.End()

	pending := make([]pond.Result[Result], 0, len(cases))
	results := make([]Result, len(cases))
	collected, failed := 0, 0
	collect := func() {
		res, err := pending[collected].Wait()
		if err != nil {
			// The task panicked.
			res = Result{Case: cases[collected], Err: err}
		}
		results[collected] = res
		collected++
		if res.Err != nil {
			failed++
		}
		track.Progress(collected, failed)
	}

	for i, c := range cases {
		if i > 0 && r.cfg.Delay > 0 {
			// A sequential run paces from the end of the previous case.
			if r.cfg.Concurrency == 1 {
				for collected < len(pending) {
					collect()
				}
			}
			r.log.Info("waiting before next case", "delay", r.cfg.Delay)
			if !sleep(ctx, r.cfg.Delay) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		r.log.Info("analyzing case", "case", c.ID, "position", i+1, "total", len(cases), "expected", c.ExpectedLabel)
		pending = append(pending, pool.Submit(func() Result {
			return r.analyze(ctx, c)
		}))
	}

	submitted := len(pending)
	for collected < submitted {
		collect()
	}
	for i := submitted; i < len(cases); i++ {
		results[i] = Result{Case: cases[i], Err: ctx.Err()}
		observability.BatchRows.WithLabelValues("skipped").Inc()
	}
	return results
}

func (r *Runner) analyze(ctx context.Context, c Case) Result {
	res := Result{Case: c}
	report, err := r.cfg.Analyzer.Run(ctx, c.Description)
	if err != nil {
		r.log.Error("case analysis failed", "case", c.ID, "expected", c.ExpectedLabel, "error", err)
		observability.BatchRows.WithLabelValues("failed").Inc()
		res.Err = err
		return res
	}
	r.log.Info("case analysis completed", "case", c.ID, "expected", c.ExpectedLabel, "duration", report.Duration)
	observability.BatchRows.WithLabelValues("ok").Inc()
	res.Report = report.Final
	return res
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
