package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
)

func encodeInt(value int64) (field []byte) {
	field = make([]byte, lenField)
	binary.LittleEndian.PutUint64(field, uint64(value))
	return
}

func decodeInt(field []byte) (value int64) {
	value = int64(binary.LittleEndian.Uint64(field))
	return
}

// Sends one integer (node id, task id or peer id)
func SendID(link Sender, nodeID int64, id int64) (err error) {
	err = link.Send(nodeID, encodeInt(id))
	if err != nil {
		err = fmt.Errorf("failed sending id to node %d: %w", nodeID, err)
	}
	return
}

func ReceiveID(ctx context.Context, link Receiver, nodeID int64) (id int64, err error) {
	field := make([]byte, lenField)
	err = link.Receive(ctx, nodeID, field)
	if err != nil {
		err = fmt.Errorf("failed receiving id from node %d: %w", nodeID, err)
		return
	}
	id = decodeInt(field)
	return
}

// Relays a fragment as four discrete sends: task id, offset, size, payload.
// Callers serialize concurrent relays to the same node so the sends stay contiguous.
func SendFragment(link Sender, nodeID int64, header FragmentHeader, payload []byte) (err error) {
	if int64(len(payload)) != header.Size {
		err = fmt.Errorf("payload length %d does not match header size %d", len(payload), header.Size)
		return
	}

	fields := []struct {
		name string
		data []byte
	}{
		{"task id", encodeInt(header.TaskID)},
		{"offset", encodeInt(header.Offset)},
		{"size", encodeInt(header.Size)},
		{"payload", payload},
	}
	for _, field := range fields {
		err = link.Send(nodeID, field.data)
		if err != nil {
			err = fmt.Errorf("failed sending fragment %s to node %d: %w", field.name, nodeID, err)
			return
		}
	}
	return
}

// Reads the three header fields of the next relayed fragment.
// The payload follows as a single receive of header.Size bytes.
func ReceiveFragmentHeader(ctx context.Context, link Receiver, nodeID int64) (header FragmentHeader, err error) {
	values := make([]int64, 3)
	for i := range values {
		values[i], err = ReceiveID(ctx, link, nodeID)
		if err != nil {
			return
		}
	}

	header = FragmentHeader{TaskID: values[0], Offset: values[1], Size: values[2]}
	if header.Size <= 0 {
		err = fmt.Errorf("node %d sent fragment of task %d with invalid size %d", nodeID, header.TaskID, header.Size)
	}
	return
}
