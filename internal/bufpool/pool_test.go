package bufpool

import (
	"bytes"
	"pivotrepair/internal/global"
	"testing"
)

func TestPool_New(t *testing.T) {
	tests := []struct {
		name      string
		bufSize   int
		slots     int
		expectErr bool
	}{
		{"valid", 64, 4, false},
		{"zero size", 0, 4, true},
		{"zero slots", 64, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New([]string{global.NSTest}, tt.bufSize, tt.slots)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got '%v'", err)
			}
			if pool.perSlot < 1 {
				t.Fatalf("expected at least one retained buffer per slot, got %d", pool.perSlot)
			}
		})
	}
}

func TestPool_KeyedReuse(t *testing.T) {
	pool, err := New([]string{global.NSTest}, 64, 4)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}

	first := pool.Acquire(32, 8)
	if first.Len() != 32 || len(first.Bytes()) != 32 {
		t.Fatalf("expected length 32, got %d", first.Len())
	}
	mem := &first.data[0]
	pool.Recycle(first)

	// other slot does not get it
	other := pool.Acquire(16, 9)
	if &other.data[0] == mem {
		t.Fatalf("expected different slot to allocate fresh memory")
	}

	again := pool.Acquire(64, 12) // 12 mod 4 == 8 mod 4
	if &again.data[0] != mem {
		t.Fatalf("expected keyed slot to reuse released memory")
	}
	if got := pool.Metrics.Reused.Load(); got != 1 {
		t.Fatalf("expected 1 reuse, got %d", got)
	}
}

func TestPool_OversizedBypass(t *testing.T) {
	pool, _ := New([]string{global.NSTest}, 16, 1)

	big := pool.Acquire(100, 0)
	if big.Len() != 100 {
		t.Fatalf("expected length 100, got %d", big.Len())
	}
	pool.Recycle(big)
	if got := pool.Metrics.Dropped.Load(); got != 1 {
		t.Fatalf("expected oversized buffer to be dropped, got %d drops", got)
	}
	pool.Recycle(nil)
}

func TestBuffer_Swap(t *testing.T) {
	pool, _ := New([]string{global.NSTest}, 8, 2)

	a := pool.Acquire(4, 0)
	copy(a.Bytes(), "aaaa")
	b := pool.Acquire(2, 1)
	copy(b.Bytes(), "bb")

	a.Swap(b)
	if !bytes.Equal(a.Bytes(), []byte("bb")) || !bytes.Equal(b.Bytes(), []byte("aaaa")) {
		t.Fatalf("expected swapped contents, got '%s' and '%s'", a.Bytes(), b.Bytes())
	}

	a.Resize(10)
	if a.Len() != 8 {
		t.Fatalf("expected resize to clamp at capacity 8, got %d", a.Len())
	}
}
