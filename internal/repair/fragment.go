// Types shared by the repair pipeline stages
package repair

import (
	"context"
	"pivotrepair/internal/bufpool"
)

// Unit of data moving between stages. A fragment without a buffer and with a positive size
// announces the total byte volume of its task.
type Fragment struct {
	TaskID int64
	Offset int64
	Size   int64
	Buf    *bufpool.Buffer

	TarID  int64 // accumulates additively while merging
	SrcNum int64 // contributions this fragment stands for
	Delay  int64 // relay pacing hint in microseconds
}

func (frag Fragment) IsAnnouncement() (ok bool) {
	ok = frag.Buf == nil && frag.Size > 0
	return
}

// Downstream stage accepting fragments
type Sink interface {
	Submit(ctx context.Context, frag Fragment) (err error)
}

// Called once when a task has been fully handled by this node
type TaskDoneFunc func(ctx context.Context, summary TaskSummary)

type TaskSummary struct {
	TaskID int64
	Bytes  uint64
	Stored bool // final target, written locally
	Target int64
	Start  int64 // unix ns of first fragment
	End    int64 // unix ns of completion
}
