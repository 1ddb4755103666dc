// Package gather runs the social and momentum signal sources and merges their
// output into the tick's signal cache.
package gather

import (
	"context"
	"sync"

	"social-trading-agent/config"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/state"
)

// Gatherer is one signal source. Errors demote the source for the tick; they
// never abort the phase.
type Gatherer interface {
	Name() string
	Gather(ctx context.Context, cfg *config.AgentConfig) ([]state.Signal, error)
}

// Runner fans the gatherers out in parallel and merges their signals.
type Runner struct {
	gatherers []Gatherer
	log       *logging.Logger
}

func NewRunner(log *logging.Logger, gatherers ...Gatherer) *Runner {
	return &Runner{gatherers: gatherers, log: log.WithComponent("gather")}
}

// Run collects from every source. A failed source contributes nothing; the
// rest still count.
func (r *Runner) Run(ctx context.Context, cfg *config.AgentConfig) []state.Signal {
	type result struct {
		name    string
		signals []state.Signal
		err     error
	}

	results := make(chan result, len(r.gatherers))
	var wg sync.WaitGroup
	for _, g := range r.gatherers {
		wg.Add(1)
		go func(g Gatherer) {
			defer wg.Done()
			signals, err := g.Gather(ctx, cfg)
			results <- result{name: g.Name(), signals: signals, err: err}
		}(g)
	}
	wg.Wait()
	close(results)

	var merged []state.Signal
	for res := range results {
		if res.err != nil {
			r.log.Warn("source_skipped", "source", res.name, "error", res.err.Error())
			continue
		}
		r.log.Info("source_gathered", "source", res.name, "signals", len(res.signals))
		merged = append(merged, res.signals...)
	}
	return merged
}
