// Package fanout implements the concurrency contract of spec.md §5: one
// independent submission per calendar, a single-consumer result queue, and
// an m-of-n success criterion bounded by a wall-clock budget, driven by a
// caller-supplied submit function.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronoproof/internal/proof"
)

// Result is one calendar submission's outcome, tagged with a correlation
// ID so a caller can trace a single stamp operation across calendars.
type Result struct {
	CorrelationID uuid.UUID
	CalendarURL   string
	Timestamp     *proof.Timestamp
	Err           error
}

// SubmitFunc submits a digest (already closed over by the caller) to one
// calendar URL.
type SubmitFunc func(ctx context.Context, calendarURL string) (*proof.Timestamp, error)

// Dispatch launches one goroutine per URL and returns a buffered channel
// of Results, closed once every goroutine has reported. The channel's
// capacity equals len(urls), so a goroutine never blocks on a consumer
// that stopped draining early — abandoned results are simply dropped on
// the floor when the channel is garbage collected.
func Dispatch(ctx context.Context, urls []string, submit SubmitFunc) <-chan Result {
	out := make(chan Result, len(urls))
	id := uuid.New()
	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			ts, err := submit(ctx, url)
			select {
			case out <- Result{CorrelationID: id, CalendarURL: url, Timestamp: ts, Err: err}:
			case <-ctx.Done():
			}
		}(url)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Collect drains results until m successful submissions have been seen or
// budget elapses, whichever comes first. A budget of zero means no
// deadline beyond ctx itself. Leftover submits are abandoned; their
// results, if they arrive later, are never read.
func Collect(ctx context.Context, results <-chan Result, m int, budget time.Duration) []Result {
	if m <= 0 {
		return nil
	}

	var deadline <-chan time.Time
	if budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		deadline = timer.C
	}

	successes := make([]Result, 0, m)
	for len(successes) < m {
		select {
		case r, ok := <-results:
			if !ok {
				return successes
			}
			if r.Err == nil {
				successes = append(successes, r)
			}
		case <-deadline:
			return successes
		case <-ctx.Done():
			return successes
		}
	}
	return successes
}
