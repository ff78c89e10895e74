package processor

import (
	"context"
	"errors"
	"pivotrepair/internal/queue/mpmc"
	"sync"
	"sync/atomic"
)

var (
	ErrNoCapacity = errors.New("no worker capacity available")
	ErrStopped    = errors.New("processor stopped")
)

// Work performed for every item pulled off a queue
type Handler[T any] interface {
	Process(ctx context.Context, item T, queueID int)
}

type HandlerFunc[T any] func(ctx context.Context, item T, queueID int)

func (fn HandlerFunc[T]) Process(ctx context.Context, item T, queueID int) {
	fn(ctx, item, queueID)
}

// Picks the queue for an item. ok == false means no queue can take it.
type Affinity[T any] func(item T) (queueID int, ok bool)

// Fixed set of queues, each drained by dedicated workers
type Processor[T any] struct {
	Namespace       []string
	queues          []*mpmc.Queue[T]
	workersPerQueue int
	handler         Handler[T]
	affinity        Affinity[T]

	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	Metrics MetricStorage
}

type MetricStorage struct {
	Submitted atomic.Uint64 // accepted into a queue
	Rejected  atomic.Uint64 // refused by affinity
	Processed atomic.Uint64
	Panics    atomic.Uint64 // recovered handler panics
	SumNs     atomic.Uint64
	MaxNs     atomic.Uint64
}
