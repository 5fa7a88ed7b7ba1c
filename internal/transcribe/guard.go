package transcribe

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Guard wraps a Transcriber with a process-wide cap on concurrent
// invocations. Model memory dominates the process footprint, so unbounded
// parallel calls are the main resource-exhaustion risk; callers across all
// files queue here first-come first-served.
type Guard struct {
	inner Transcriber
	sem   *semaphore.Weighted
}

func NewGuard(inner Transcriber, maxConcurrent int) *Guard {
	return &Guard{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (g *Guard) Transcribe(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)
	return g.inner.Transcribe(ctx, samples, sampleRate)
}
