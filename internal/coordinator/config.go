package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/schedule"
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

// Parses JSON config into coordinator config
func (cfg JSONConfig) NewCoordinatorConf() (config Config, err error) {
	config.Addresses = cfg.Addresses
	if len(config.Addresses) < 2 {
		err = fmt.Errorf("address list needs the coordinator and at least one node, got %d entries", len(config.Addresses))
		return
	}

	sizes := []struct {
		name string
		text string
		dst  *int64
		def  uint64
	}{
		{"block size", cfg.BlockSize, &config.BlockSize, global.DefaultPieceSize},
		{"piece size", cfg.PieceSize, &config.PieceSize, global.DefaultPieceSize},
	}
	for _, size := range sizes {
		value := size.def
		if size.text != "" {
			value, err = humanize.ParseBytes(size.text)
			if err != nil {
				err = fmt.Errorf("failed to parse %s: %v", size.name, err)
				return
			}
		}
		if value == 0 {
			err = fmt.Errorf("%s must be positive", size.name)
			return
		}
		*size.dst = int64(value)
	}

	// Plan source
	config.PlanPath = cfg.PlanPath
	if cfg.Chain != nil {
		chain := &schedule.ChainConfig{
			Helpers:   cfg.Chain.Helpers,
			Target:    cfg.Chain.Target,
			Blocks:    cfg.Chain.Blocks,
			BlockSize: config.BlockSize,
			Slices:    cfg.Chain.Slices,
			PieceSize: config.PieceSize,
			Replaced:  cfg.Chain.Replaced,
		}
		if cfg.Chain.Bandwidth != "" {
			var bandwidth uint64
			bandwidth, err = humanize.ParseBytes(cfg.Chain.Bandwidth)
			if err != nil {
				err = fmt.Errorf("failed to parse chain bandwidth: %v", err)
				return
			}
			chain.Bandwidth = int64(bandwidth)
		}
		config.Chain = chain
	}
	if (config.PlanPath == "") == (config.Chain == nil) {
		err = fmt.Errorf("exactly one of planPath and chain must be set")
		return
	}

	config.BandwidthRounds = cfg.BandwidthRounds
	if config.BandwidthRounds < 0 {
		err = fmt.Errorf("bandwidth rounds cannot be negative")
		return
	}

	config.DialTimeout = global.DefaultDialTimeout
	if cfg.DialTimeout != "" {
		config.DialTimeout, err = time.ParseDuration(cfg.DialTimeout)
		if err != nil {
			err = fmt.Errorf("failed to parse dial timeout: %v", err)
			return
		}
	}

	if cfg.Link.SecretFile != "" {
		var secret []byte
		secret, err = os.ReadFile(cfg.Link.SecretFile)
		if err != nil {
			err = fmt.Errorf("failed to read link secret: %v", err)
			return
		}
		config.Secret = []byte(strings.TrimSpace(string(secret)))
	}
	return
}

// Builds a fresh provider for one pass over the plan
func (cfg Config) NewProvider() (provider schedule.Provider, err error) {
	if cfg.PlanPath != "" {
		provider, err = schedule.NewTaskReader(cfg.PlanPath)
		return
	}
	if cfg.Chain == nil {
		err = fmt.Errorf("no plan configured")
		return
	}
	provider, err = schedule.NewChain(*cfg.Chain)
	return
}
