package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fail(_ context.Context) (int, error)    { return 0, errors.New("boom") }
func succeed(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("oracle", 3, time.Minute)
	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := Call(context.Background(), b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker("oracle", 2, time.Minute)
	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, succeed)
	_, _ = Call(context.Background(), b, fail)
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("oracle", 1, time.Second)
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	b.now = func() time.Time { return now.Add(2 * time.Second) }
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	// A failed probe reopens.
	_, _ = Call(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected reopened, got %s", b.State())
	}

	b.now = func() time.Time { return now.Add(4 * time.Second) }
	if _, err := Call(context.Background(), b, succeed); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_CanceledCallDoesNotCount(t *testing.T) {
	b := NewBreaker("oracle", 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _ = Call(ctx, b, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	b := NewBreaker("oracle", 1000, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Call(context.Background(), b, fail)
				return
			}
			_, _ = Call(context.Background(), b, succeed)
		}(i)
	}
	wg.Wait()
	if b.State() == Open {
		t.Error("breaker should not open below threshold")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: expected %q, got %q", s, want, s.String())
		}
	}
}
