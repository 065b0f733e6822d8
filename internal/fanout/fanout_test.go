package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronoproof/internal/proof"
)

func TestDispatchAndCollectMOfN(t *testing.T) {
	urls := []string{"cal-a", "cal-b", "cal-c"}
	submit := func(ctx context.Context, url string) (*proof.Timestamp, error) {
		if url == "cal-b" {
			return nil, errors.New("unreachable")
		}
		return proof.New([]byte(url)), nil
	}

	ctx := context.Background()
	results := Dispatch(ctx, urls, submit)
	collected := Collect(ctx, results, 2, time.Second)

	if len(collected) != 2 {
		t.Fatalf("expected 2 successes, got %d", len(collected))
	}
	for _, r := range collected {
		if r.Err != nil {
			t.Fatalf("collected result carries an error: %v", r.Err)
		}
		if r.CorrelationID.String() == "" {
			t.Fatal("expected a non-empty correlation id")
		}
	}
}

func TestCollectStopsAtBudget(t *testing.T) {
	urls := []string{"slow-a", "slow-b"}
	submit := func(ctx context.Context, url string) (*proof.Timestamp, error) {
		select {
		case <-time.After(time.Hour):
		case <-ctx.Done():
		}
		return proof.New([]byte(url)), ctx.Err()
	}

	ctx := context.Background()
	results := Dispatch(ctx, urls, submit)

	start := time.Now()
	collected := Collect(ctx, results, 2, 50*time.Millisecond)
	if time.Since(start) > time.Second {
		t.Fatal("Collect did not honor its budget")
	}
	if len(collected) != 0 {
		t.Fatalf("expected no successes within the short budget, got %d", len(collected))
	}
}

func TestCollectZeroMReturnsNil(t *testing.T) {
	ch := make(chan Result)
	close(ch)
	if got := Collect(context.Background(), ch, 0, time.Second); got != nil {
		t.Fatalf("expected nil for m<=0, got %v", got)
	}
}

func TestCollectReturnsEarlyWhenChannelCloses(t *testing.T) {
	urls := []string{"only-one"}
	submit := func(ctx context.Context, url string) (*proof.Timestamp, error) {
		return proof.New([]byte(url)), nil
	}

	ctx := context.Background()
	results := Dispatch(ctx, urls, submit)
	collected := Collect(ctx, results, 5, time.Second)
	if len(collected) != 1 {
		t.Fatalf("expected exactly 1 success before the channel closed, got %d", len(collected))
	}
}
