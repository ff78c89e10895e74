package combiner

import (
	"context"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/coding"
	"pivotrepair/internal/processor"
	"pivotrepair/internal/repair"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Merges same-offset fragments of a task and forwards each completed piece once
type Combiner struct {
	Namespace []string
	proc      *processor.Processor[repair.Fragment]
	tasks     *taskRegistry
	pool      *bufpool.Pool
	op        *coding.Operator
	next      repair.Sink
	newPolicy func() backoff.BackOff

	// Canceled by Stop so retries toward a full downstream give up
	stopCtx    context.Context
	stopCancel context.CancelFunc

	Metrics MetricStorage
}

type entryKind int

const (
	credit            entryKind = iota // bytes of a completed piece, 0 while the piece is open
	totalAnnouncement                  // declared task volume
)

type ledgerEntry struct {
	kind  entryKind
	bytes int64
}

// Tasks currently aggregating, plus a short memory of completed ids
type taskRegistry struct {
	mu       sync.Mutex
	tasks    map[int64]*taskState
	recent   map[int64]struct{}
	ring     []int64
	ringNext int
}

type taskState struct {
	mu        sync.Mutex
	sum       int64
	total     int64
	announced bool
	done      bool
	started   time.Time
	pieces    pieceRegistry
}

type pieceRegistry struct {
	mu     sync.Mutex
	pieces map[int64]*piece // keyed by offset
}

// In-progress combination for one (task, offset)
type piece struct {
	mu       sync.Mutex
	frag     repair.Fragment
	scratch  *bufpool.Buffer
	received int64
	expected int64
	done     bool
}

type MetricStorage struct {
	Fragments      atomic.Uint64
	Announcements  atomic.Uint64
	Combines       atomic.Uint64
	CombinedBytes  atomic.Uint64
	PiecesDone     atomic.Uint64
	TasksDone      atomic.Uint64
	ForwardRetries atomic.Uint64
	ForwardErrors  atomic.Uint64
	Anomalies      atomic.Uint64
	SumNs          atomic.Uint64
	MaxNs          atomic.Uint64
}
