// Sources of repair plans for the coordinator
package schedule

import (
	"bufio"
	"os"
	"pivotrepair/pkg/protocol"
)

// Yields task groups one at a time. Tasks of one group run concurrently,
// groups run one after another.
type Provider interface {
	// Loads the next group set. ok is false once the plan is exhausted.
	NextGroupNumber() (groups int, ok bool)
	TaskNumber(group int) (tasks int)
	// Fills nodeID's part of a task into directive and returns the nodes that send to it.
	// A node without a part gets Size 0 and is skipped.
	FillTask(group, task int, nodeID int64, directive *protocol.Directive) (sources []int64)
	// Sum of task bandwidths of the current set
	Capacity() (bytesPerSec uint64)
	// Node that reads its bandwidth from the replacement column, 0 for none
	ReplacedNode() (nodeID int64)
}

// One node's role in a plan task
type nodeTask struct {
	nodeID int64
	tarID  int64
}

type taskInfo struct {
	id        int64
	offset    int64
	size      int64
	pieceSize int64
	bandwidth int64
	nodes     []nodeTask
}

// Reads a precomputed plan file. Format (whitespace separated integers):
//
//	groupCount
//	taskCount                                   (per group)
//	id offset size pieceSize bandwidth nodeNum  (per task)
//	nodeID tarID                                (nodeNum pairs)
//
// A node whose target is itself is the final target of the task.
type TaskReader struct {
	file    *os.File
	scanner *bufio.Scanner

	groupNum int
	current  int
	tasks    []taskInfo
	capacity uint64
	err      error
}

// Pipelined repair along an ordered helper list into one target
type ChainConfig struct {
	Helpers   []int64 // relay order, first helper starts the chain
	Target    int64
	Blocks    int   // one group per block
	BlockSize int64 // bytes per block
	Slices    int   // concurrent tasks per block
	PieceSize int64
	Bandwidth int64 // per task pacing hint, 0 for none
	Replaced  bool  // target reads the replacement column of bandwidth profiles
}

type Chain struct {
	cfg       ChainConfig
	position  map[int64]int // helper id -> index
	round     int
	sliceSize int64
}
