package coordinator

import (
	"io"
	"pivotrepair/internal/global"
	"pivotrepair/internal/schedule"
	"pivotrepair/pkg/protocol"
	"sync/atomic"
	"time"
)

type JSONConfig struct {
	Addresses []string `json:"addresses"` // index 0 is this coordinator
	BlockSize string   `json:"blockSize"` // default task size, e.g. "64MiB"
	PieceSize string   `json:"pieceSize"` // default piece size, e.g. "1MiB"
	PlanPath  string   `json:"planPath,omitempty"`
	Chain     *struct {
		Helpers   []int64 `json:"helpers"`
		Target    int64   `json:"target"`
		Blocks    int     `json:"blocks"`
		Slices    int     `json:"slices,omitempty"`
		Bandwidth string  `json:"bandwidth,omitempty"` // per task, e.g. "50MiB"
		Replaced  bool    `json:"replacementTarget,omitempty"`
	} `json:"chain,omitempty"`
	BandwidthRounds int             `json:"bandwidthRounds,omitempty"` // profile entries to run the plan under, 0 skips bandwidth control
	DialTimeout     string          `json:"dialTimeout,omitempty"`
	Link            global.LinkConf `json:"link"`
}

type Config struct {
	Addresses       []string
	BlockSize       int64
	PieceSize       int64
	PlanPath        string
	Chain           *schedule.ChainConfig
	BandwidthRounds int
	DialTimeout     time.Duration
	Secret          []byte
}

// Drives repair nodes through task groups over the control protocol
type Coordinator struct {
	Namespace []string
	link      protocol.Link
	closer    io.Closer // owned link, nil when injected
	total     int       // nodes including the coordinator

	provider  schedule.Provider
	groups    int
	blockSize int64
	pieceSize int64
	curTaskID int64

	Metrics MetricStorage
}

type MetricStorage struct {
	Groups     atomic.Uint64
	Directives atomic.Uint64
	Acks       atomic.Uint64
	BadAcks    atomic.Uint64
	Bytes      atomic.Uint64
}
