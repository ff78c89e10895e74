package transport

import (
	"errors"
	"net"
	"pivotrepair/internal/crypto/aead"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrClosed      = errors.New("transport closed")
)

// Connection settings shared by every mesh kind
type Options struct {
	Secret      []byte        // enables link sealing when set
	DialTimeout time.Duration // total time spent retrying dials to one peer
}

// Fully connected set of point-to-point links, keyed by node id
type Mesh struct {
	Namespace []string
	self      int64
	peers     map[int64]*peer // fixed after connect
	listener  net.Listener

	closeOnce sync.Once
	closed    atomic.Bool

	Metrics MetricStorage
}

type peer struct {
	id   int64
	conn net.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	// nil when the link is not sealed
	seal  *aead.Stream
	open  *aead.Stream
	frame []byte // sealed frame scratch, guarded by readMu
	out   []byte // sealed frame scratch, guarded by writeMu
}

type MetricStorage struct {
	Sends         atomic.Uint64
	BytesSent     atomic.Uint64
	Receives      atomic.Uint64
	BytesReceived atomic.Uint64
	Errors        atomic.Uint64
}
