package msgstore

import (
	"context"
	"sync"
)

// Runner is a long running message consumer. Subscription, and the
// projections and command processors built on it, are Runners
type Runner interface {
	Run(ctx context.Context) error
	Stop()
}

// NewProjector constructs a Projector
func NewProjector(runners ...Runner) *Projector {
	return &Projector{
		runners: runners,
	}
}

// Projector runs projections and command processors concurrently, each on
// its own goroutine. They share no state, a stopped one does not stop the others
type Projector struct {
	runners []Runner
}

// Add effectively registers a runner with the projector
// Make sure to add all of your runners before calling Run
func (p *Projector) Add(runners ...Runner) {
	p.runners = append(p.runners, runners...)
}

// Run will start all runners and block until every one of them stopped.
// It returns the first error a runner stopped with
func (p *Projector) Run(ctx context.Context) error {
	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)

	for _, r := range p.runners {
		wg.Add(1)

		go func(r Runner) {
			defer wg.Done()

			if err := r.Run(ctx); err != nil {
				once.Do(func() { first = err })
			}
		}(r)
	}

	wg.Wait()

	return first
}

// Stop stops all runners
func (p *Projector) Stop() {
	for _, r := range p.runners {
		r.Stop()
	}
}
