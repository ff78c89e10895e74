package mpmc

import (
	"context"
	"errors"
	"pivotrepair/internal/global"
	"runtime"
	"sync"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestQueue_PushPopScenarios(t *testing.T) {
	type op struct {
		push *int // nil means pop
		want *int
		full bool // push expected to fail
	}

	tests := []struct {
		name     string
		capacity uint64
		ops      []op
	}{
		{
			name:     "SinglePushPop",
			capacity: 32,
			ops:      []op{{push: intPtr(10)}, {want: intPtr(10)}},
		},
		{
			name:     "FullRejects",
			capacity: 2,
			ops: []op{
				{push: intPtr(1)},
				{push: intPtr(2)},
				{push: intPtr(3), full: true},
				{want: intPtr(1)},
			},
		},
		{
			name:     "DeepWrap",
			capacity: 4,
			ops: []op{
				{push: intPtr(0)},
				{push: intPtr(1)},
				{push: intPtr(2)},
				{push: intPtr(3)},
				{want: intPtr(0)},
				{want: intPtr(1)},
				{push: intPtr(100)},
				{push: intPtr(200)},
				{want: intPtr(2)},
				{want: intPtr(3)},
				{want: intPtr(100)},
				{want: intPtr(200)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New[int]([]string{global.NSTest}, tt.capacity)
			if err != nil {
				t.Fatalf("expected no error in creating queue, but got '%v'", err)
			}

			for i, op := range tt.ops {
				if op.push != nil {
					if ok := q.Push(*op.push); ok == op.full {
						t.Fatalf("op %d: push(%d) expected success=%v, got %v", i, *op.push, !op.full, ok)
					}
					continue
				}
				got, ok := q.Pop(context.Background())
				if !ok {
					t.Fatalf("op %d: pop failed", i)
				}
				if got != *op.want {
					t.Fatalf("op %d: expected %d, got %d", i, *op.want, got)
				}
			}
		})
	}
}

func TestQueue_New_InvalidCapacity(t *testing.T) {
	for _, capacity := range []uint64{0, 1, 3, 12} {
		if _, err := New[int](nil, capacity); err == nil {
			t.Fatalf("expected error for capacity %d, got nil", capacity)
		}
	}
	if got := Capacity(100); got != 128 {
		t.Fatalf("expected 128, got %d", got)
	}
	if got := Capacity(0); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestQueue_Concurrency(t *testing.T) {
	tests := []struct {
		name      string
		capacity  uint64
		producers int
		consumers int
		perProd   int
	}{
		{"SingleProducerSingleConsumer", 128, 1, 1, 1000},
		{"HighContention", 16, 8, 8, 500},
		{"ManyConsumers", 64, 2, 16, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New[int]([]string{global.NSTest}, tt.capacity)
			if err != nil {
				t.Fatalf("expected no error in creating queue, but got '%v'", err)
			}

			var producers sync.WaitGroup
			for p := 0; p < tt.producers; p++ {
				producers.Add(1)
				go func() {
					defer producers.Done()
					for j := 0; j < tt.perProd; j++ {
						for !q.Push(j) {
							runtime.Gosched()
						}
					}
				}()
			}

			var mu sync.Mutex
			popped := 0
			var consumers sync.WaitGroup
			for c := 0; c < tt.consumers; c++ {
				consumers.Add(1)
				go func() {
					defer consumers.Done()
					for {
						if _, ok := q.Pop(context.Background()); !ok {
							return
						}
						mu.Lock()
						popped++
						mu.Unlock()
					}
				}()
			}

			producers.Wait()
			q.Close()
			consumers.Wait()

			if want := tt.producers * tt.perProd; popped != want {
				t.Fatalf("expected %d pops, got %d", want, popped)
			}
			if q.Len() != 0 {
				t.Fatalf("expected empty queue, got depth %d", q.Len())
			}
		})
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q, _ := New[int]([]string{global.NSTest}, 8)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	q.Close()

	if q.Push(99) {
		t.Fatalf("expected push after close to fail")
	}
	if err := q.PushBlocking(context.Background(), 99, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got '%v'", err)
	}

	for i := 0; i < 5; i++ {
		got, ok := q.Pop(context.Background())
		if !ok || got != i {
			t.Fatalf("expected drained value %d, got %d (ok=%v)", i, got, ok)
		}
	}
	if _, ok := q.Pop(context.Background()); ok {
		t.Fatalf("expected pop on closed empty queue to fail")
	}
}

func TestQueue_ContextBehavior(t *testing.T) {
	t.Run("PopBlocksUntilPush", func(t *testing.T) {
		q, _ := New[int]([]string{global.NSTest}, 2)

		done := make(chan int)
		go func() {
			result, _ := q.Pop(context.Background())
			done <- result
		}()
		time.Sleep(20 * time.Millisecond)
		q.Push(42)

		select {
		case got := <-done:
			if got != 42 {
				t.Fatalf("expected 42, got %d", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("pop did not wake after push")
		}
	})

	t.Run("PopCancelled", func(t *testing.T) {
		q, _ := New[int]([]string{global.NSTest}, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, ok := q.Pop(ctx); ok {
			t.Fatalf("expected cancelled pop to fail")
		}
	})

	t.Run("PushBlockingWaitsForSpace", func(t *testing.T) {
		q, _ := New[int]([]string{global.NSTest}, 2)
		q.Push(1)
		q.Push(2)

		go func() {
			time.Sleep(20 * time.Millisecond)
			q.Pop(context.Background())
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := q.PushBlocking(ctx, 3, 8); err != nil {
			t.Fatalf("expected blocking push to succeed, got '%v'", err)
		}
		if got := q.Metrics.Bytes.Load(); got != 8 {
			t.Fatalf("expected byte gauge 8, got %d", got)
		}
	})
}

func TestQueue_CollectMetrics(t *testing.T) {
	q, _ := New[int]([]string{global.NSTest}, 4)
	q.Push(1)
	q.Push(2)
	q.Pop(context.Background())

	collection := q.CollectMetrics(time.Second)
	values := map[string]uint64{}
	for _, m := range collection {
		values[m.Name] = m.Value.Raw.(uint64)
	}

	if values["depth"] != 1 {
		t.Fatalf("expected depth 1, got %d", values["depth"])
	}
	if values["push_success"] != 2 || values["pop_success"] != 1 {
		t.Fatalf("expected 2 pushes and 1 pop, got %d and %d", values["push_success"], values["pop_success"])
	}

	again := q.CollectMetrics(time.Second)
	for _, m := range again {
		if m.Name == "push_success" && m.Value.Raw.(uint64) != 0 {
			t.Fatalf("expected counters reset after collection, got %d", m.Value.Raw)
		}
	}
}
