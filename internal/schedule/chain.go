package schedule

import (
	"fmt"
	"pivotrepair/pkg/protocol"
)

func NewChain(cfg ChainConfig) (new *Chain, err error) {
	if len(cfg.Helpers) == 0 {
		err = fmt.Errorf("chain needs at least one helper")
		return
	}
	if cfg.Target <= 0 {
		err = fmt.Errorf("chain target must be a node id, got %d", cfg.Target)
		return
	}
	if cfg.Blocks <= 0 || cfg.BlockSize <= 0 || cfg.PieceSize <= 0 {
		err = fmt.Errorf("chain needs positive block count, block size and piece size")
		return
	}
	if cfg.Slices <= 0 {
		cfg.Slices = 1
	}
	if int64(cfg.Slices) > cfg.BlockSize {
		err = fmt.Errorf("cannot split %d byte blocks into %d slices", cfg.BlockSize, cfg.Slices)
		return
	}

	new = &Chain{
		cfg:       cfg,
		position:  make(map[int64]int, len(cfg.Helpers)),
		sliceSize: cfg.BlockSize / int64(cfg.Slices),
	}
	for i, helper := range cfg.Helpers {
		if helper <= 0 || helper == cfg.Target {
			err = fmt.Errorf("invalid helper %d in chain to %d", helper, cfg.Target)
			new = nil
			return
		}
		if _, duplicate := new.position[helper]; duplicate {
			err = fmt.Errorf("helper %d listed twice", helper)
			new = nil
			return
		}
		new.position[helper] = i
	}
	return
}

func (chain *Chain) NextGroupNumber() (groups int, ok bool) {
	if chain.round >= chain.cfg.Blocks {
		return
	}
	chain.round++
	groups, ok = 1, true
	return
}

func (chain *Chain) TaskNumber(group int) (tasks int) {
	if group == 0 && chain.round > 0 {
		tasks = chain.cfg.Slices
	}
	return
}

// Helper i relays to helper i+1, the last helper to the target which stores
func (chain *Chain) FillTask(group, task int, nodeID int64, directive *protocol.Directive) (sources []int64) {
	directive.TarID = 0
	directive.SrcNum = 0
	directive.Size = 0
	if group != 0 || task < 0 || task >= chain.cfg.Slices {
		return
	}

	helpers := chain.cfg.Helpers
	last := len(helpers) - 1
	if nodeID == chain.cfg.Target {
		directive.TarID = chain.cfg.Target
		sources = []int64{helpers[last]}
	} else if i, ok := chain.position[nodeID]; ok {
		directive.TarID = chain.cfg.Target
		if i < last {
			directive.TarID = helpers[i+1]
		}
		if i > 0 {
			sources = []int64{helpers[i-1]}
		}
	} else {
		return
	}
	directive.SrcNum = int64(len(sources))

	blockOffset := int64(chain.round-1) * chain.cfg.BlockSize
	directive.Offset = blockOffset + int64(task)*chain.sliceSize
	directive.Size = chain.sliceSize
	if task == chain.cfg.Slices-1 {
		directive.Size = chain.cfg.BlockSize - int64(task)*chain.sliceSize
	}
	directive.PieceSize = chain.cfg.PieceSize
	directive.Bandwidth = chain.cfg.Bandwidth
	return
}

func (chain *Chain) Capacity() (bytesPerSec uint64) {
	if chain.cfg.Bandwidth > 0 {
		bytesPerSec = uint64(chain.cfg.Bandwidth) * uint64(chain.cfg.Slices)
	}
	return
}

func (chain *Chain) ReplacedNode() (nodeID int64) {
	if chain.cfg.Replaced {
		nodeID = chain.cfg.Target
	}
	return
}
