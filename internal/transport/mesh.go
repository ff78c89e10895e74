// Point-to-point links between repair nodes. Every pair shares one ordered, blocking connection.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/metrics"
	"slices"
	"sort"
	"time"
)

// Sealed frames carry a 4 byte little-endian ciphertext length
const lenFrameHeader int = 4

func newMesh(namespace []string, self int64) (new *Mesh) {
	new = &Mesh{
		Namespace: slices.Concat(namespace, []string{global.NSTransport}),
		self:      self,
		peers:     make(map[int64]*peer),
	}
	return
}

// This node's id
func (mesh *Mesh) ID() (id int64) {
	id = mesh.self
	return
}

// Connected peer ids in ascending order
func (mesh *Mesh) Peers() (ids []int64) {
	for id := range mesh.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return
}

func (mesh *Mesh) lookup(nodeID int64) (p *peer, err error) {
	if mesh.closed.Load() {
		err = ErrClosed
		return
	}
	p, ok := mesh.peers[nodeID]
	if !ok {
		err = fmt.Errorf("%w: %d", ErrUnknownNode, nodeID)
		return
	}
	return
}

// Writes data as one message to nodeID
func (mesh *Mesh) Send(nodeID int64, data []byte) (err error) {
	p, err := mesh.lookup(nodeID)
	if err != nil {
		return
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.seal == nil {
		_, err = p.conn.Write(data)
	} else {
		p.out = append(p.out[:0], 0, 0, 0, 0)
		p.out, err = p.seal.Seal(p.out, data)
		if err == nil {
			binary.LittleEndian.PutUint32(p.out, uint32(len(p.out)-lenFrameHeader))
			_, err = p.conn.Write(p.out)
		}
	}
	if err != nil {
		mesh.Metrics.Errors.Add(1)
		err = fmt.Errorf("send of %d bytes to node %d failed: %w", len(data), nodeID, err)
		return
	}

	mesh.Metrics.Sends.Add(1)
	mesh.Metrics.BytesSent.Add(uint64(len(data)))
	return
}

// Fills data with the next message from nodeID. Cancelling ctx aborts the read,
// after which the link's framing is no longer trustworthy.
func (mesh *Mesh) Receive(ctx context.Context, nodeID int64, data []byte) (err error) {
	p, err := mesh.lookup(nodeID)
	if err != nil {
		return
	}

	p.readMu.Lock()
	defer p.readMu.Unlock()

	err = p.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return
	}
	stop := context.AfterFunc(ctx, func() {
		_ = p.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if p.open == nil {
		_, err = io.ReadFull(p.conn, data)
	} else {
		err = p.readFrame(data)
	}

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			err = ctx.Err()
			return
		}
		mesh.Metrics.Errors.Add(1)
		err = fmt.Errorf("receive of %d bytes from node %d failed: %w", len(data), nodeID, err)
		return
	}

	mesh.Metrics.Receives.Add(1)
	mesh.Metrics.BytesReceived.Add(uint64(len(data)))
	return
}

func (p *peer) readFrame(data []byte) (err error) {
	var header [lenFrameHeader]byte
	_, err = io.ReadFull(p.conn, header[:])
	if err != nil {
		return
	}

	frameLen := int(binary.LittleEndian.Uint32(header[:]))
	if frameLen != len(data)+p.open.Overhead() {
		err = fmt.Errorf("sealed frame holds %d bytes, expected %d", frameLen-p.open.Overhead(), len(data))
		return
	}
	if cap(p.frame) < frameLen {
		p.frame = make([]byte, frameLen)
	}
	p.frame = p.frame[:frameLen]

	_, err = io.ReadFull(p.conn, p.frame)
	if err != nil {
		return
	}
	_, err = p.open.Open(data[:0], p.frame)
	return
}

// Closes every link and the listener
func (mesh *Mesh) Close() (err error) {
	mesh.closeOnce.Do(func() {
		mesh.closed.Store(true)
		if mesh.listener != nil {
			err = errors.Join(err, mesh.listener.Close())
		}
		for _, p := range mesh.peers {
			err = errors.Join(err, p.conn.Close())
		}
	})
	return
}

func (mesh *Mesh) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   mesh.Namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("sends_total", mesh.Metrics.Sends.Swap(0), "count", "Messages sent in the interval")
	add("sent_bytes", mesh.Metrics.BytesSent.Swap(0), "bytes", "Payload bytes sent in the interval")
	add("receives_total", mesh.Metrics.Receives.Swap(0), "count", "Messages received in the interval")
	add("received_bytes", mesh.Metrics.BytesReceived.Swap(0), "bytes", "Payload bytes received in the interval")
	add("errors_total", mesh.Metrics.Errors.Swap(0), "count", "Failed sends and receives in the interval")
	return
}
