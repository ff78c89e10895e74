package node

import (
	"encoding/json"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Loads JSON config from file
func LoadConfig(path string) (cfg JSONConfig, err error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %v", err)
		return
	}

	err = json.Unmarshal(configFile, &cfg)
	if err != nil {
		err = fmt.Errorf("invalid config syntax in '%s': %v", path, err)
		return
	}

	return
}

// Parses JSON config into daemon config
func (cfg JSONConfig) NewDaemonConf() (config Config, err error) {
	// Identity
	config.NodeID = cfg.NodeID
	config.Addresses = cfg.Addresses
	if len(config.Addresses) < 2 {
		err = fmt.Errorf("address list needs the coordinator and at least one node, got %d entries", len(config.Addresses))
		return
	}
	if config.NodeID <= global.CoordinatorID || config.NodeID >= int64(len(config.Addresses)) {
		err = fmt.Errorf("node id %d outside of address list [1,%d)", config.NodeID, len(config.Addresses))
		return
	}

	// Files
	config.LoadPath = cfg.Paths.Load
	config.StorePath = cfg.Paths.Store
	config.BandwidthPath = cfg.Paths.Bandwidth
	if config.LoadPath == "" || config.StorePath == "" {
		err = fmt.Errorf("load and store paths are required")
		return
	}

	// Pipeline settings
	config.BlockNum = cfg.Pipeline.BlockNum
	if cfg.Pipeline.BlockSize != "" {
		config.BlockSize, err = humanize.ParseBytes(cfg.Pipeline.BlockSize)
		if err != nil {
			err = fmt.Errorf("failed to parse block size: %v", err)
			return
		}
	}
	config.ReceiveWorkers = cfg.Pipeline.ReceiveWorkers
	config.CombineWorkers = cfg.Pipeline.CombineWorkers
	config.FlowWorkers = cfg.Pipeline.FlowWorkers
	config.QueueSize = cfg.Pipeline.QueueSize
	config.AnnounceTimeout, err = parseOptionalDuration(cfg.Pipeline.AnnounceTimeout)
	if err != nil {
		err = fmt.Errorf("failed to parse announce timeout: %v", err)
		return
	}
	config.DialTimeout, err = parseOptionalDuration(cfg.Pipeline.DialTimeout)
	if err != nil {
		err = fmt.Errorf("failed to parse dial timeout: %v", err)
		return
	}

	// Link settings
	if cfg.Link.SecretFile != "" {
		var secret []byte
		secret, err = os.ReadFile(cfg.Link.SecretFile)
		if err != nil {
			err = fmt.Errorf("failed to read link secret: %v", err)
			return
		}
		config.Secret = []byte(strings.TrimSpace(string(secret)))
	}

	// Output settings
	config.BeatsAddress = cfg.Outputs.BeatsAddress

	// Metric settings
	config.MetricsEnabled = cfg.Metrics.Enabled
	config.MetricHTTPEnabled = cfg.Metrics.EnableHTTP
	config.MetricListenAddr = cfg.Metrics.ListenAddr
	config.MetricHTTPPort = cfg.Metrics.HTTPPortNum
	config.MetricMaxAge, err = parseOptionalDuration(cfg.Metrics.MaxAge)
	if err != nil {
		err = fmt.Errorf("failed to parse metric max age time: %v", err)
		return
	}
	config.MetricCollectionInterval, err = parseOptionalDuration(cfg.Metrics.Interval)
	if err != nil {
		err = fmt.Errorf("failed to parse metric collection interval time: %v", err)
		return
	}
	return
}

func parseOptionalDuration(text string) (duration time.Duration, err error) {
	if text == "" {
		return
	}
	duration, err = time.ParseDuration(text)
	return
}

// Sets defaults for any missing/invalid values
func (cfg *Config) setDefaults() {
	logicalCPUCount := runtime.NumCPU()

	// Buffers
	if cfg.BlockNum <= 0 {
		cfg.BlockNum = global.DefaultBlockNum
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = global.DefaultPieceSize
	}

	// Workers
	if cfg.ReceiveWorkers <= 0 {
		cfg.ReceiveWorkers = logicalCPUCount
	}
	if cfg.CombineWorkers <= 0 {
		cfg.CombineWorkers = logicalCPUCount
	}
	if cfg.FlowWorkers <= 0 {
		cfg.FlowWorkers = global.DefaultFlowWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = global.DefaultQueueSize
	}

	// Timeouts
	if cfg.AnnounceTimeout == 0 {
		cfg.AnnounceTimeout = global.DefaultAnnounceTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = global.DefaultDialTimeout
	}

	// Metrics
	if cfg.MetricMaxAge == 0 {
		cfg.MetricMaxAge = global.MetricDefaultMaxAge
	}
	if cfg.MetricCollectionInterval == 0 {
		cfg.MetricCollectionInterval = global.MetricDefaultCollect
	}
	if cfg.MetricListenAddr == "" {
		cfg.MetricListenAddr = global.HTTPListenAddr
	}
	if cfg.MetricHTTPPort == 0 {
		cfg.MetricHTTPPort = global.HTTPListenPortNode
	}
}
