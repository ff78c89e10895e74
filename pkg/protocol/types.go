package protocol

import "context"

// One unit of repair work addressed to a single node.
// Doubles as the control message carrier, see Kind.
type Directive struct {
	TaskID    int64
	SrcNum    int64 // peers that will send to this node for the task
	TarID     int64 // node that receives this node's output
	Offset    int64
	Size      int64 // bytes this node contributes, 0 marks a control message
	PieceSize int64 // 0 together with Size 0 is the shutdown sentinel
	Coef      int64 // GF(2^8) coefficient applied to the local contribution
	Bandwidth int64 // bytes per second hint for pacing, 0 for none
}

type Kind int

const (
	KindTask Kind = iota
	KindShutdown
	KindBandwidth
)

func (kind Kind) String() (name string) {
	switch kind {
	case KindTask:
		name = "task"
	case KindShutdown:
		name = "shutdown"
	case KindBandwidth:
		name = "bandwidth"
	default:
		name = "unknown"
	}
	return
}

// Header preceding a relayed payload
type FragmentHeader struct {
	TaskID int64
	Offset int64
	Size   int64
}

// Point-to-point blocking primitives the protocol is written against.
// One Send is always read back by exactly one Receive of the same length.
type Sender interface {
	Send(nodeID int64, data []byte) error
}

type Receiver interface {
	Receive(ctx context.Context, nodeID int64, data []byte) error
}

type Link interface {
	Sender
	Receiver
}
