package receiver

import (
	"context"
	"io"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/processor"
	"pivotrepair/internal/repair"
	"pivotrepair/pkg/protocol"
	"sync"
	"sync/atomic"
)

type Config struct {
	Self      int64
	Source    io.ReaderAt // local contribution, read at directive offsets
	Link      protocol.Receiver
	Pool      *bufpool.Pool
	Next      repair.Sink
	Workers   int
	QueueSize int
}

// Turns directives into fragments: local reads for this node's own contribution,
// one long-lived stream reader per contributing peer
type Receiver struct {
	Namespace []string
	self      int64
	source    io.ReaderAt
	link      protocol.Receiver
	pool      *bufpool.Pool
	next      repair.Sink
	proc      *processor.Processor[protocol.Directive]

	mu           sync.Mutex
	streams      map[int64]struct{}
	streamCtx    context.Context
	streamCancel context.CancelFunc
	streamWG     sync.WaitGroup

	Metrics MetricStorage
}

type MetricStorage struct {
	LocalJobs     atomic.Uint64
	LocalBytes    atomic.Uint64
	PeerFragments atomic.Uint64
	PeerBytes     atomic.Uint64
	ReadErrors    atomic.Uint64
	Streams       atomic.Int64 // currently running stream readers
	ReadSumNs     atomic.Uint64
	ReadMaxNs     atomic.Uint64
}
