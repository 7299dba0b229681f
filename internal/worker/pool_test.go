package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPoolDefaultConcurrency(t *testing.T) {
	p := NewPool[string](0)
	if p.Limit() != runtime.NumCPU() {
		t.Errorf("expected limit %d, got %d", runtime.NumCPU(), p.Limit())
	}

	p2 := NewPool[string](-1)
	if p2.Limit() != runtime.NumCPU() {
		t.Errorf("expected limit %d for -1, got %d", runtime.NumCPU(), p2.Limit())
	}
}

func TestMaxConcurrent(t *testing.T) {
	cases := []struct {
		n, limit, want int
	}{
		{0, 8, 0},
		{-3, 8, 0},
		{1, 8, 1},
		{5, 8, 5},
		{8, 8, 8},
		{20, 8, 8},
		{3, 0, 0},
	}
	for _, tc := range cases {
		if got := MaxConcurrent(tc.n, tc.limit); got != tc.want {
			t.Errorf("MaxConcurrent(%d, %d) = %d, want %d", tc.n, tc.limit, got, tc.want)
		}
	}
}

func TestRunEmpty(t *testing.T) {
	p := NewPool[string](2)
	results := p.Run(context.Background(), 0, func(context.Context, int) string { return "x" }, nil)
	if results != nil {
		t.Errorf("expected nil results for empty input, got %v", results)
	}
}

func TestRunPreservesOrder(t *testing.T) {
	p := NewPool[string](3)
	items := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	results := p.Run(context.Background(), len(items), func(_ context.Context, i int) string {
		// Later items finish first.
		time.Sleep(time.Duration(len(items)-i) * time.Millisecond)
		return "processed-" + items[i]
	}, nil)

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result[%d].Index = %d", i, r.Index)
		}
		if !r.Admitted {
			t.Errorf("result[%d] not admitted", i)
		}
		if want := "processed-" + items[i]; r.Value != want {
			t.Errorf("result[%d] = %q, want %q", i, r.Value, want)
		}
	}
}

func TestRunNeverExceedsLimit(t *testing.T) {
	for _, n := range []int{1, 3, 8, 9, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			const limit = 4
			p := NewPool[int](limit)

			var current, peak int64
			results := p.Run(context.Background(), n, func(_ context.Context, i int) int {
				c := atomic.AddInt64(&current, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if c <= old || atomic.CompareAndSwapInt64(&peak, old, c) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return i
			}, nil)

			if len(results) != n {
				t.Fatalf("expected %d results, got %d", n, len(results))
			}
			if got := atomic.LoadInt64(&peak); got > int64(MaxConcurrent(n, limit)) {
				t.Fatalf("peak concurrency %d exceeds %d", got, MaxConcurrent(n, limit))
			}
			for i, r := range results {
				if r.Value != i {
					t.Errorf("result[%d] = %d", i, r.Value)
				}
			}
		})
	}
}

func TestRunReplenishesSlots(t *testing.T) {
	// With limit 2, item 0 blocks until item 2 has started. That only
	// happens if item 1 finishing frees a slot immediately.
	p := NewPool[int](2)
	thirdStarted := make(chan struct{})

	results := p.Run(context.Background(), 3, func(_ context.Context, i int) int {
		switch i {
		case 0:
			select {
			case <-thirdStarted:
			case <-time.After(5 * time.Second):
				return -1
			}
		case 2:
			close(thirdStarted)
		}
		return i
	}, nil)

	if results[0].Value != 0 {
		t.Fatal("third item was not admitted while the first was still running")
	}
}

func TestRunObserverOrdering(t *testing.T) {
	p := NewPool[int](3)
	var events []Update[int]

	// observe runs on the driver goroutine, so appending without a lock is safe.
	p.Run(context.Background(), 6, func(_ context.Context, i int) int {
		time.Sleep(time.Duration(i%3) * time.Millisecond)
		return i * 10
	}, func(u Update[int]) {
		events = append(events, u)
	})

	if len(events) != 12 {
		t.Fatalf("expected 12 updates, got %d", len(events))
	}
	started := map[int]bool{}
	finished := map[int]bool{}
	for _, ev := range events {
		switch ev.Kind {
		case Started:
			if started[ev.Index] || finished[ev.Index] {
				t.Fatalf("index %d started twice or after finishing", ev.Index)
			}
			started[ev.Index] = true
		case Finished:
			if !started[ev.Index] {
				t.Fatalf("index %d finished before starting", ev.Index)
			}
			if ev.Value != ev.Index*10 {
				t.Fatalf("index %d finished with %d", ev.Index, ev.Value)
			}
			finished[ev.Index] = true
		}
	}
}

func TestRunStopsAdmittingAfterCancel(t *testing.T) {
	p := NewPool[int](2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran int64
	results := p.Run(ctx, 10, func(ctx context.Context, i int) int {
		atomic.AddInt64(&ran, 1)
		<-ctx.Done()
		return i
	}, func(u Update[int]) {
		if u.Kind == Started && u.Index == 1 {
			cancel()
		}
	})

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	admitted := 0
	for _, r := range results {
		if r.Admitted {
			admitted++
		}
	}
	if admitted != 2 || atomic.LoadInt64(&ran) != 2 {
		t.Fatalf("admitted=%d ran=%d, want only the initial 2", admitted, ran)
	}
	for _, r := range results[2:] {
		if r.Admitted {
			t.Fatalf("result[%d] admitted after cancellation", r.Index)
		}
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	p := NewPool[int](4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := p.Run(ctx, 3, func(context.Context, int) int {
		t.Error("fn must not run after cancellation")
		return 0
	}, nil)
	for _, r := range results {
		if r.Admitted {
			t.Errorf("result[%d] admitted", r.Index)
		}
	}
}

// --- Benchmarks ---

func BenchmarkPoolRun(b *testing.B) {
	for i := 0; i < b.N; i++ {
		p := NewPool[int](4)
		_ = p.Run(context.Background(), 100, func(_ context.Context, i int) int { return i }, nil)
	}
}
