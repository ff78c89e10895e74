package flow

import (
	"context"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/processor"
	"pivotrepair/internal/repair"
	"pivotrepair/pkg/protocol"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// Local destination of fragments whose target is this node
type Store interface {
	WriteAt(offset int64, data []byte) error
}

// Relay rate shaping, waited on before each send
type Limiter interface {
	Wait(ctx context.Context, n int) error
}

type Config struct {
	Self       int64
	Workers    int
	QueueSize  int
	Pool       *bufpool.Pool
	Store      Store
	Link       protocol.Sender
	Limiter    Limiter     // optional
	Clock      clock.Clock // defaults to the real clock
	OnTaskDone repair.TaskDoneFunc
	Fatal      func(ctx context.Context, err error)
}

// Pins each task to one worker, stores or relays its fragments and reports completion
type Controller struct {
	Namespace []string
	self      int64
	proc      *processor.Processor[repair.Fragment]
	slots     *slotPool
	workers   []workerState

	pool    *bufpool.Pool
	store   Store
	link    protocol.Sender
	limiter Limiter
	clock   clock.Clock
	onDone  repair.TaskDoneFunc
	fatal   func(ctx context.Context, err error)

	destMu    sync.Mutex
	destLocks map[int64]*sync.Mutex

	Metrics MetricStorage
}

// Free worker ids and the task -> worker pins
type slotPool struct {
	mu   sync.Mutex
	free []int // FIFO
	pins map[int64]int
}

// Only touched by the owning worker
type workerState struct {
	remaining int64 // announced minus handled bytes
	handled   uint64
	stored    bool
	target    int64
	started   time.Time
}

type MetricStorage struct {
	Fragments    atomic.Uint64
	StoredBytes  atomic.Uint64
	RelayedBytes atomic.Uint64
	RelayErrors  atomic.Uint64
	StoreErrors  atomic.Uint64
	TasksDone    atomic.Uint64
	AckErrors    atomic.Uint64
	PacingWaitNs atomic.Uint64
	RelaySumNs   atomic.Uint64
	RelayMaxNs   atomic.Uint64
}
