// Buffer pool for fragment payloads. Buffers acquired with the same key land in the same slot,
// so a piece offset keeps reusing the memory it released last round.
package bufpool

import (
	"fmt"
	"pivotrepair/internal/metrics"
	"time"

	"github.com/pbnjay/memory"
)

const (
	maxRetainedPerSlot int    = 4
	memoryShareDivisor uint64 = 8 // retain at most 1/8 of free memory
)

// Creates a pool of bufSize buffers spread across slotCount keyed slots
func New(namespace []string, bufSize int, slotCount int) (new *Pool, err error) {
	if bufSize <= 0 {
		err = fmt.Errorf("buffer size must be positive, got %d", bufSize)
		return
	}
	if slotCount <= 0 {
		err = fmt.Errorf("slot count must be positive, got %d", slotCount)
		return
	}

	perSlot := maxRetainedPerSlot
	availMem := memory.FreeMemory()
	if availMem > 0 {
		budget := availMem / memoryShareDivisor / uint64(bufSize) / uint64(slotCount)
		if budget < uint64(perSlot) {
			perSlot = int(budget)
		}
	}
	if perSlot < 1 {
		perSlot = 1
	}

	new = &Pool{
		Namespace: append(append([]string(nil), namespace...), "Pool"),
		bufSize:   bufSize,
		perSlot:   perSlot,
		slots:     make([]slot, slotCount),
	}
	return
}

func (pool *Pool) slotFor(key int64) (s *slot) {
	s = &pool.slots[uint64(key)%uint64(len(pool.slots))]
	return
}

// Returns a buffer with at least size valid bytes. Oversized requests bypass the pool.
func (pool *Pool) Acquire(size int, key int64) (buf *Buffer) {
	pool.Metrics.Acquired.Add(1)

	if size > pool.bufSize {
		pool.Metrics.Allocated.Add(1)
		buf = &Buffer{data: make([]byte, size), n: size, key: key}
		return
	}

	s := pool.slotFor(key)
	s.mu.Lock()
	if last := len(s.free) - 1; last >= 0 {
		buf = s.free[last]
		s.free = s.free[:last]
	}
	s.mu.Unlock()

	if buf == nil {
		pool.Metrics.Allocated.Add(1)
		buf = &Buffer{data: make([]byte, pool.bufSize)}
	} else {
		pool.Metrics.Reused.Add(1)
	}
	buf.n = size
	buf.key = key
	return
}

// Hands a buffer back once its last owner is done. nil is ignored.
func (pool *Pool) Recycle(buf *Buffer) {
	if buf == nil {
		return
	}
	pool.Metrics.Recycled.Add(1)

	if cap(buf.data) != pool.bufSize {
		pool.Metrics.Dropped.Add(1)
		return
	}

	s := pool.slotFor(buf.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.free) >= pool.perSlot {
		pool.Metrics.Dropped.Add(1)
		return
	}
	buf.n = 0
	s.free = append(s.free, buf)
}

func (pool *Pool) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   pool.Namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: "count", Interval: interval},
		})
	}

	add("acquired", pool.Metrics.Acquired.Swap(0), "Buffers handed out in the interval")
	add("reused", pool.Metrics.Reused.Swap(0), "Buffers served from a free list in the interval")
	add("allocated", pool.Metrics.Allocated.Swap(0), "Fresh buffer allocations in the interval")
	add("recycled", pool.Metrics.Recycled.Swap(0), "Buffers returned in the interval")
	add("dropped", pool.Metrics.Dropped.Swap(0), "Returned buffers released to the garbage collector in the interval")
	return
}
