package atomics

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSubtract(t *testing.T) {
	tests := []struct {
		name        string
		initial     uint64
		subtract    uint64
		wantSuccess bool
		wantFinal   uint64
	}{
		{name: "already zero", initial: 0, subtract: 5, wantSuccess: true, wantFinal: 0},
		{name: "simple subtraction", initial: 10, subtract: 3, wantSuccess: true, wantFinal: 7},
		{name: "clamps at zero", initial: 5, subtract: 10, wantSuccess: true, wantFinal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a atomic.Uint64
			a.Store(tt.initial)

			ok := Subtract(&a, tt.subtract, 3)
			if ok != tt.wantSuccess {
				t.Fatalf("expected success=%v, got %v", tt.wantSuccess, ok)
			}
			if final := a.Load(); final != tt.wantFinal {
				t.Fatalf("expected final=%d, got %d", tt.wantFinal, final)
			}
		})
	}
}

func TestStoreMax_Concurrent(t *testing.T) {
	var peak atomic.Uint64
	var wg sync.WaitGroup
	for i := uint64(1); i <= 64; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			StoreMax(&peak, v)
		}(i)
	}
	wg.Wait()

	if got := peak.Load(); got != 64 {
		t.Fatalf("expected max 64, got %d", got)
	}
}
