// Helper functions for atomic counters shared by pipeline stages
package atomics

import (
	"sync/atomic"
	"time"
)

// Subtracts value from source, clamping at 0. Gives up after maxRetries lost CAS races.
func Subtract(source *atomic.Uint64, value uint64, maxRetries int) (success bool) {
	retryInterval := 10 * time.Microsecond

	for i := 0; i < maxRetries; i++ {
		current := source.Load()
		if current == 0 {
			success = true
			return
		}

		newValue := uint64(0)
		if value < current {
			newValue = current - value
		}

		if source.CompareAndSwap(current, newValue) {
			success = true
			return
		}

		time.Sleep(retryInterval)
		retryInterval *= 2
	}
	return
}

// Raises dst to value if value is larger
func StoreMax(dst *atomic.Uint64, value uint64) {
	for {
		current := dst.Load()
		if value <= current {
			return
		}
		if dst.CompareAndSwap(current, value) {
			return
		}
	}
}

// Records one elapsed sample into a sum/max pair
func ObserveDuration(sum, peak *atomic.Uint64, elapsed time.Duration) {
	ns := uint64(elapsed.Nanoseconds())
	sum.Add(ns)
	StoreMax(peak, ns)
}
