package bufpool

import (
	"sync"
	"sync/atomic"
)

// Owned handle to one payload buffer. Exactly one pipeline stage holds it at a time.
type Buffer struct {
	data []byte
	n    int   // valid length
	key  int64 // slot key it was acquired with
}

type slot struct {
	mu   sync.Mutex
	free []*Buffer
}

// Keyed free lists of fixed size buffers
type Pool struct {
	Namespace []string
	bufSize   int
	perSlot   int // retained buffers per slot
	slots     []slot
	Metrics   MetricStorage
}

type MetricStorage struct {
	Acquired  atomic.Uint64
	Reused    atomic.Uint64 // served from a free list
	Allocated atomic.Uint64 // fresh allocations
	Recycled  atomic.Uint64
	Dropped   atomic.Uint64 // recycled but not retained
}
