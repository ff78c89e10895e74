package processor

import (
	"context"
	"errors"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testCtx() (ctx context.Context) {
	ctx = logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
	return
}

func TestNew_Validation(t *testing.T) {
	noop := HandlerFunc[int](func(context.Context, int, int) {})

	tests := []struct {
		name      string
		queues    int
		workers   int
		handler   Handler[int]
		expectErr bool
	}{
		{"valid", 2, 2, noop, false},
		{"no queues", 0, 1, noop, true},
		{"no workers", 1, 0, noop, true},
		{"no handler", 1, 1, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, err := New[int]([]string{global.NSTest}, tt.queues, tt.workers, 8, tt.handler, nil)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got '%v'", err)
			}
			if len(proc.queues) != tt.queues {
				t.Fatalf("expected %d queues, got %d", tt.queues, len(proc.queues))
			}
		})
	}
}

func TestProcessor_DrainOnStop(t *testing.T) {
	ctx := testCtx()

	var total atomic.Int64
	var handled atomic.Int64
	handler := HandlerFunc[int](func(_ context.Context, item int, _ int) {
		total.Add(int64(item))
		handled.Add(1)
	})

	proc, err := New[int]([]string{global.NSTest}, 3, 2, 64, handler, nil)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}

	// Fill before workers start so Stop has buffered work to drain
	const items = 150
	for i := 1; i <= items; i++ {
		if err := proc.Submit(ctx, i); err != nil {
			t.Fatalf("expected submit to succeed, got '%v'", err)
		}
	}
	proc.Start(ctx)
	proc.Stop()

	if handled.Load() != items {
		t.Fatalf("expected %d handled items, got %d", items, handled.Load())
	}
	if total.Load() != items*(items+1)/2 {
		t.Fatalf("expected sum %d, got %d", items*(items+1)/2, total.Load())
	}

	err = proc.Submit(ctx, 1)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after stop, got '%v'", err)
	}
}

func TestProcessor_AffinityRouting(t *testing.T) {
	ctx := testCtx()

	var mu sync.Mutex
	seen := make(map[int][]int) // queue -> items

	handler := HandlerFunc[int](func(_ context.Context, item int, queueID int) {
		mu.Lock()
		seen[queueID] = append(seen[queueID], item)
		mu.Unlock()
	})
	affinity := func(item int) (queueID int, ok bool) {
		if item < 0 {
			return
		}
		queueID = item % 2
		ok = true
		return
	}

	proc, err := New[int]([]string{global.NSTest}, 2, 1, 16, handler, affinity)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	proc.Start(ctx)

	for i := 0; i < 10; i++ {
		if err := proc.Submit(ctx, i); err != nil {
			t.Fatalf("expected submit to succeed, got '%v'", err)
		}
	}
	err = proc.Submit(ctx, -1)
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity, got '%v'", err)
	}
	proc.Stop()

	for queueID, items := range seen {
		for i, item := range items {
			if item%2 != queueID {
				t.Fatalf("expected item %d on queue %d, got queue %d", item, item%2, queueID)
			}
			// one worker per queue keeps submission order
			if i > 0 && items[i-1] > item {
				t.Fatalf("expected ordered processing on queue %d, got %v", queueID, items)
			}
		}
	}
	if got := proc.Metrics.Rejected.Load(); got != 1 {
		t.Fatalf("expected 1 rejection, got %d", got)
	}
}

func TestProcessor_PanicRecovery(t *testing.T) {
	ctx := testCtx()

	var handled atomic.Int64
	handler := HandlerFunc[int](func(_ context.Context, item int, _ int) {
		if item == 0 {
			panic("bad item")
		}
		handled.Add(1)
	})

	proc, err := New[int]([]string{global.NSTest}, 1, 1, 8, handler, nil)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	proc.Start(ctx)
	for _, item := range []int{1, 0, 2} {
		if err := proc.Submit(ctx, item); err != nil {
			t.Fatalf("expected submit to succeed, got '%v'", err)
		}
	}
	proc.Stop()

	if handled.Load() != 2 {
		t.Fatalf("expected worker to survive the panic and handle 2 items, got %d", handled.Load())
	}
	if proc.Metrics.Panics.Load() != 1 {
		t.Fatalf("expected 1 recorded panic, got %d", proc.Metrics.Panics.Load())
	}
}

func TestProcessor_PushBounds(t *testing.T) {
	handler := HandlerFunc[int](func(context.Context, int, int) {})
	proc, _ := New[int]([]string{global.NSTest}, 1, 1, 8, handler, nil)

	if err := proc.Push(testCtx(), 1, 5); err == nil {
		t.Fatalf("expected out of range error, got nil")
	}
}

func TestProcessor_SubmitHonorsContext(t *testing.T) {
	handler := HandlerFunc[int](func(context.Context, int, int) {})
	proc, _ := New[int]([]string{global.NSTest}, 1, 1, 2, handler, nil)

	ctx := testCtx()
	// never started, so the queue fills
	_ = proc.Submit(ctx, 1)
	_ = proc.Submit(ctx, 2)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := proc.Submit(timeoutCtx, 3)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on full queue, got '%v'", err)
	}
	proc.Stop()
}
