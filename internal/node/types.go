package node

import (
	"context"
	"net/http"
	"os"
	"pivotrepair/internal/bandwidth"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/externalio/beats"
	"pivotrepair/internal/global"
	"pivotrepair/internal/metrics"
	"pivotrepair/internal/repair/combiner"
	"pivotrepair/internal/repair/flow"
	"pivotrepair/internal/repair/receiver"
	"pivotrepair/internal/storage"
	"pivotrepair/internal/transport"
	"sync"
	"sync/atomic"
	"time"
)

type JSONConfig struct {
	NodeID    int64    `json:"nodeID"`
	Addresses []string `json:"addresses"` // index 0 is the coordinator
	Paths     struct {
		Load      string `json:"load"`
		Store     string `json:"store"`
		Bandwidth string `json:"bandwidthProfile,omitempty"`
	} `json:"paths"`
	Pipeline struct {
		BlockNum        int    `json:"blockNum,omitempty"`
		BlockSize       string `json:"blockSize,omitempty"` // e.g. "64MiB"
		ReceiveWorkers  int    `json:"receiveWorkers,omitempty"`
		CombineWorkers  int    `json:"combineWorkers,omitempty"`
		FlowWorkers     int    `json:"flowWorkers,omitempty"`
		QueueSize       int    `json:"queueSize,omitempty"`
		AnnounceTimeout string `json:"announceTimeout,omitempty"`
		DialTimeout     string `json:"dialTimeout,omitempty"`
	} `json:"pipeline"`
	Link    global.LinkConf   `json:"link"`
	Metrics global.MetricConf `json:"metrics"`
	Outputs struct {
		BeatsAddress string `json:"beatsAddress,omitempty"`
	} `json:"outputs"`
}

type Config struct {
	NodeID    int64
	Addresses []string

	// Files
	LoadPath      string
	StorePath     string
	BandwidthPath string

	// Pipeline sizing
	BlockNum        int
	BlockSize       uint64
	ReceiveWorkers  int
	CombineWorkers  int
	FlowWorkers     int
	QueueSize       int
	AnnounceTimeout time.Duration
	DialTimeout     time.Duration

	// Link sealing, empty disables
	Secret []byte

	// Outputs
	BeatsAddress string

	// Metrics
	MetricsEnabled           bool
	MetricHTTPEnabled        bool
	MetricListenAddr         string
	MetricHTTPPort           int
	MetricCollectionInterval time.Duration
	MetricMaxAge             time.Duration
}

type State int32

const (
	StateIdle State = iota
	StateConnected
	StateRunning
	StateDraining
	StateStopped
)

// One repair node: receiver -> combiner -> flow controller, fed by a control loop
type Daemon struct {
	Namespace []string
	cfg       Config
	ctx       context.Context
	cancel    context.CancelFunc
	state     atomic.Int32

	wg           sync.WaitGroup
	shutdownOnce sync.Once

	// Control loop
	controlCancel context.CancelFunc
	controlDone   chan struct{}

	// Overridable for tests
	connect func(ctx context.Context) (*transport.Mesh, error)
	fatal   func(ctx context.Context, err error)

	link     *transport.Mesh
	source   *os.File
	store    *storage.Writer
	pool     *bufpool.Pool
	profile  *bandwidth.Profile
	shaper   *bandwidth.Shaper
	Receiver *receiver.Receiver
	Combiner *combiner.Combiner
	Flow     *flow.Controller
	beats    *beats.Reporter

	gatherer     *metrics.Gatherer
	MetricServer *http.Server

	Metrics MetricStorage
}

type MetricStorage struct {
	Directives     atomic.Uint64
	Tasks          atomic.Uint64
	PeerIDs        atomic.Uint64
	BandwidthCmds  atomic.Uint64
	TasksCompleted atomic.Uint64
	ControlErrors  atomic.Uint64
}
