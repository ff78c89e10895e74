package mpmc

import (
	"errors"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("queue closed")

type cell[T any] struct {
	seq  atomic.Uint64
	data T
}

// Bounded lock-free ring. Producers and consumers only meet on the sequence numbers of each cell.
type Queue[T any] struct {
	Namespace []string
	Size      int
	mask      uint64
	buf       []cell[T]
	head      atomic.Uint64
	tail      atomic.Uint64

	notEmpty chan struct{} // wakes one blocked consumer
	notFull  chan struct{} // wakes one blocked producer

	closed    chan struct{}
	closeOnce sync.Once
	isClosed  atomic.Bool
	writers   atomic.Int64 // producers between closed check and publish

	Metrics *MetricStorage
}
