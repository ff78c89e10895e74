// Generic multi-worker consumer. Items are spread over a fixed set of queues by an affinity function.
package processor

import (
	"context"
	"fmt"
	"pivotrepair/internal/atomics"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/queue/mpmc"
	"runtime/debug"
	"slices"
	"strconv"
	"sync/atomic"
	"time"
)

// Creates a processor with queueCount queues of queueSize items, each served by workersPerQueue workers.
// A nil affinity spreads items round robin.
func New[T any](namespace []string, queueCount, workersPerQueue, queueSize int, handler Handler[T], affinity Affinity[T]) (new *Processor[T], err error) {
	if queueCount <= 0 {
		err = fmt.Errorf("queue count must be positive, got %d", queueCount)
		return
	}
	if workersPerQueue <= 0 {
		err = fmt.Errorf("workers per queue must be positive, got %d", workersPerQueue)
		return
	}
	if handler == nil {
		err = fmt.Errorf("handler is required")
		return
	}

	new = &Processor[T]{
		Namespace:       slices.Clone(namespace),
		queues:          make([]*mpmc.Queue[T], queueCount),
		workersPerQueue: workersPerQueue,
		handler:         handler,
		affinity:        affinity,
	}
	if new.affinity == nil {
		new.affinity = RoundRobin[T](queueCount)
	}

	for i := range new.queues {
		new.queues[i], err = mpmc.New[T](slices.Concat(namespace, []string{strconv.Itoa(i)}), mpmc.Capacity(queueSize))
		if err != nil {
			err = fmt.Errorf("failed creating queue %d: %w", i, err)
			new = nil
			return
		}
	}
	return
}

// Spreads items evenly regardless of content
func RoundRobin[T any](queueCount int) (affinity Affinity[T]) {
	var next atomic.Uint64
	affinity = func(T) (queueID int, ok bool) {
		queueID = int((next.Add(1) - 1) % uint64(queueCount))
		ok = true
		return
	}
	return
}

// Launches every worker. Workers run until Stop drains their queue or ctx ends.
func (proc *Processor[T]) Start(ctx context.Context) {
	if !proc.started.CompareAndSwap(false, true) {
		return
	}

	for queueID := range proc.queues {
		for n := 0; n < proc.workersPerQueue; n++ {
			workerID := queueID*proc.workersPerQueue + n
			workerCtx := logctx.AppendCtxTag(ctx, global.NSWorker, strconv.Itoa(workerID))

			proc.wg.Add(1)
			go proc.run(workerCtx, queueID)
		}
	}
}

// Routes an item through the affinity function and enqueues it.
// Blocks while the chosen queue is full.
func (proc *Processor[T]) Submit(ctx context.Context, item T) (err error) {
	if proc.stopped.Load() {
		err = ErrStopped
		return
	}

	queueID, ok := proc.affinity(item)
	if !ok {
		proc.Metrics.Rejected.Add(1)
		err = ErrNoCapacity
		return
	}
	err = proc.Push(ctx, item, queueID)
	return
}

// Enqueues into a specific queue
func (proc *Processor[T]) Push(ctx context.Context, item T, queueID int) (err error) {
	if queueID < 0 || queueID >= len(proc.queues) {
		err = fmt.Errorf("queue %d out of range [0,%d)", queueID, len(proc.queues))
		return
	}
	if proc.stopped.Load() {
		err = ErrStopped
		return
	}

	err = proc.queues[queueID].PushBlocking(ctx, item, 0)
	if err == mpmc.ErrClosed {
		err = ErrStopped
		return
	}
	if err != nil {
		return
	}
	proc.Metrics.Submitted.Add(1)
	return
}

// Closes every queue, lets workers finish what is buffered, then waits for them
func (proc *Processor[T]) Stop() {
	proc.stopOnce.Do(func() {
		proc.stopped.Store(true)
		for _, queue := range proc.queues {
			queue.Close()
		}
	})
	proc.wg.Wait()
}

func (proc *Processor[T]) run(ctx context.Context, queueID int) {
	defer proc.wg.Done()

	queue := proc.queues[queueID]
	for {
		item, received := queue.Pop(ctx)
		if !received {
			return
		}
		proc.process(ctx, item, queueID)
	}
}

func (proc *Processor[T]) process(ctx context.Context, item T, queueID int) {
	// Record panics and continue processing
	defer func() {
		if fatalError := recover(); fatalError != nil {
			proc.Metrics.Panics.Add(1)
			stack := debug.Stack()
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in worker thread: %v\n%s", fatalError, stack)
		}
	}()

	processingStartTime := time.Now()
	proc.handler.Process(ctx, item, queueID)
	atomics.ObserveDuration(&proc.Metrics.SumNs, &proc.Metrics.MaxNs, time.Since(processingStartTime))
	proc.Metrics.Processed.Add(1)
}
