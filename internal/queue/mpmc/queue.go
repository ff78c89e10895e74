// Multi-producer Multi-Consumer lock-free ring buffer queue with power-of-two capacity and close-then-drain semantics
package mpmc

import (
	"context"
	"fmt"
	"pivotrepair/internal/atomics"
	"pivotrepair/internal/global"
	"runtime"
	"time"
)

// Fallback poll for producers waiting on a full queue
const fullPollInterval = 10 * time.Millisecond

// Creates a new queue
func New[T any](namespace []string, capacity uint64) (new *Queue[T], err error) {
	if capacity < 2 {
		err = fmt.Errorf("capacity must be greater than or equal to 2")
		return
	}
	if (capacity & (capacity - 1)) != 0 {
		err = fmt.Errorf("capacity must be a power of two")
		return
	}

	buf := make([]cell[T], capacity)
	for i := uint64(0); i < capacity; i++ {
		buf[i].seq.Store(i)
	}

	new = &Queue[T]{
		Namespace: append(append([]string(nil), namespace...), global.NSQueue),
		Size:      int(capacity),
		mask:      capacity - 1,
		buf:       buf,
		notEmpty:  make(chan struct{}, 1),
		notFull:   make(chan struct{}, 1),
		closed:    make(chan struct{}),
		Metrics:   &MetricStorage{},
	}
	return
}

// Rounds n up to the next power of two (minimum 2), for callers sizing from config
func Capacity(n int) (capacity uint64) {
	capacity = 2
	for capacity < uint64(n) {
		capacity <<= 1
	}
	return
}

// Attempts to write an element (false = queue full or closed)
func (queue *Queue[T]) Push(value T) (success bool) {
	queue.writers.Add(1)
	defer queue.writers.Add(-1)

	if queue.isClosed.Load() {
		return
	}
	queue.Metrics.PushAttempts.Add(1)

	var pos uint64
	var slot *cell[T]
	for {
		pos = queue.tail.Load()
		slot = &queue.buf[pos&queue.mask]
		seq := slot.seq.Load()

		if seq == pos {
			if queue.tail.CompareAndSwap(pos, pos+1) {
				break
			}
		} else if seq < pos {
			queue.Metrics.PushFull.Add(1)
			return
		} else {
			runtime.Gosched()
		}
	}

	slot.data = value
	slot.seq.Store(pos + 1)
	queue.Metrics.PushSuccess.Add(1)
	queue.Metrics.Depth.Add(1)

	signal(queue.notEmpty)
	success = true
	return
}

// Blocks until the value is accepted, the queue is closed, or ctx ends.
// size is added to the byte gauge on success.
func (queue *Queue[T]) PushBlocking(ctx context.Context, value T, size int) (err error) {
	timer := time.NewTimer(fullPollInterval)
	defer timer.Stop()

	for {
		if queue.Push(value) {
			queue.Metrics.Bytes.Add(uint64(size))
			return
		}
		if queue.isClosed.Load() {
			err = ErrClosed
			return
		}

		timer.Reset(fullPollInterval)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return
		case <-queue.closed:
		case <-queue.notFull:
		case <-timer.C:
		}
	}
}

// Reads an element, blocking while empty.
// Returns false when ctx ends, or once the queue is closed and fully drained.
func (queue *Queue[T]) Pop(ctx context.Context) (out T, success bool) {
	for {
		pos := queue.head.Load()
		slot := &queue.buf[pos&queue.mask]
		seq := slot.seq.Load()
		readySeq := pos + 1

		if seq == readySeq {
			if !queue.head.CompareAndSwap(pos, pos+1) {
				continue
			}
			out = slot.data
			var zero T
			slot.data = zero
			slot.seq.Store(pos + queue.mask + 1)

			queue.Metrics.PopSuccess.Add(1)
			atomics.Subtract(&queue.Metrics.Depth, 1, 4)

			signal(queue.notFull)
			// Pass the wakeup on while items remain so idle consumers do not sit behind a busy one
			if queue.tail.Load() != queue.head.Load() {
				signal(queue.notEmpty)
			}
			success = true
			return
		}

		if seq > readySeq {
			// another consumer is ahead, retry
			continue
		}

		// empty
		if queue.isClosed.Load() && queue.writers.Load() == 0 && queue.tail.Load() == pos {
			return
		}

		queue.Metrics.PopWaits.Add(1)
		select {
		case <-ctx.Done():
			return
		case <-queue.notEmpty:
		case <-queue.closed:
			// in-flight producers may still publish, yield before rechecking
			runtime.Gosched()
		}
	}
}

// Rejects new pushes. Consumers keep popping until the queue is empty.
func (queue *Queue[T]) Close() {
	queue.closeOnce.Do(func() {
		queue.isClosed.Store(true)
		close(queue.closed)
	})
}

// Current number of buffered items
func (queue *Queue[T]) Len() (depth int) {
	depth = int(queue.Metrics.Depth.Load())
	return
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
