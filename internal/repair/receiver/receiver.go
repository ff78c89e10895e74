// Entry stage of the repair pipeline
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"pivotrepair/internal/atomics"
	"pivotrepair/internal/coding"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/processor"
	"pivotrepair/internal/repair"
	"pivotrepair/pkg/protocol"
	"slices"
	"strconv"
	"time"
)

func New(namespace []string, cfg Config) (new *Receiver, err error) {
	if cfg.Source == nil || cfg.Link == nil || cfg.Pool == nil || cfg.Next == nil {
		err = fmt.Errorf("receiver requires a source, link, buffer pool and downstream sink")
		return
	}

	new = &Receiver{
		Namespace: slices.Concat(namespace, []string{global.NSRecv}),
		self:      cfg.Self,
		source:    cfg.Source,
		link:      cfg.Link,
		pool:      cfg.Pool,
		next:      cfg.Next,
		streams:   make(map[int64]struct{}),
	}
	new.proc, err = processor.New[protocol.Directive](new.Namespace, 1, cfg.Workers, cfg.QueueSize, new, nil)
	if err != nil {
		new = nil
		err = fmt.Errorf("failed creating receiver workers: %w", err)
		return
	}
	return
}

func (receiver *Receiver) Start(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSRecv)

	receiver.mu.Lock()
	receiver.streamCtx, receiver.streamCancel = context.WithCancel(ctx)
	receiver.mu.Unlock()

	receiver.proc.Start(ctx)
}

// Finishes queued local jobs, then stops every stream reader
func (receiver *Receiver) Stop() {
	receiver.proc.Stop()

	receiver.mu.Lock()
	if receiver.streamCancel != nil {
		receiver.streamCancel()
	}
	receiver.mu.Unlock()

	receiver.streamWG.Wait()
}

// Accepts one job from the control loop. from == self queues a local read,
// any other id makes sure that peer's stream is being read.
func (receiver *Receiver) Inject(ctx context.Context, directive protocol.Directive, from int64) (err error) {
	if from == receiver.self {
		err = receiver.proc.Submit(ctx, directive)
		return
	}
	err = receiver.ensureStream(from)
	return
}

func (receiver *Receiver) ensureStream(peerID int64) (err error) {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	if receiver.streamCtx == nil {
		err = fmt.Errorf("receiver not started")
		return
	}
	if _, running := receiver.streams[peerID]; running {
		return
	}
	receiver.streams[peerID] = struct{}{}

	ctx := logctx.AppendCtxTag(receiver.streamCtx, global.NSStream, strconv.FormatInt(peerID, 10))
	receiver.streamWG.Add(1)
	receiver.Metrics.Streams.Add(1)
	go receiver.readStream(ctx, peerID)
	return
}

// Reads relayed fragments from one peer until the link fails or ctx ends
func (receiver *Receiver) readStream(ctx context.Context, peerID int64) {
	defer receiver.streamWG.Done()
	defer receiver.Metrics.Streams.Add(-1)
	defer func() {
		receiver.mu.Lock()
		delete(receiver.streams, peerID)
		receiver.mu.Unlock()
	}()

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "reading fragments from node %d\n", peerID)
	for {
		header, err := protocol.ReceiveFragmentHeader(ctx, receiver.link, peerID)
		if err != nil {
			receiver.streamFailed(ctx, peerID, err)
			return
		}

		buf := receiver.pool.Acquire(int(header.Size), header.Offset)
		err = receiver.link.Receive(ctx, peerID, buf.Bytes())
		if err != nil {
			receiver.pool.Recycle(buf)
			receiver.streamFailed(ctx, peerID, err)
			return
		}
		receiver.Metrics.PeerFragments.Add(1)
		receiver.Metrics.PeerBytes.Add(uint64(header.Size))

		// Peer contributions carry no target, sources or delay; they add into the local fragment
		frag := repair.Fragment{
			TaskID: header.TaskID,
			Offset: header.Offset,
			Size:   header.Size,
			Buf:    buf,
		}
		err = receiver.next.Submit(ctx, frag)
		if err != nil {
			receiver.pool.Recycle(buf)
			receiver.streamFailed(ctx, peerID, err)
			return
		}
	}
}

func (receiver *Receiver) streamFailed(ctx context.Context, peerID int64, err error) {
	if ctx.Err() != nil {
		return
	}
	receiver.Metrics.ReadErrors.Add(1)
	logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
		"stream from node %d stopped: %v\n", peerID, err)
}

// Worker entry point for a local job
func (receiver *Receiver) Process(ctx context.Context, directive protocol.Directive, _ int) {
	receiver.Metrics.LocalJobs.Add(1)

	err := directive.Validate()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "rejected directive: %v\n", err)
		return
	}

	announce := repair.Fragment{
		TaskID: directive.TaskID,
		Size:   directive.Size,
		TarID:  directive.TarID,
	}
	err = receiver.next.Submit(ctx, announce)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"task %d: failed announcing volume: %v\n", directive.TaskID, err)
		return
	}

	var delay int64
	if directive.Bandwidth > 0 {
		delay = directive.PieceSize * int64(time.Second/time.Microsecond) / directive.Bandwidth
	}

	end := directive.Offset + directive.Size
	for piece := range directive.PieceCount() {
		offset := directive.Offset + piece*directive.PieceSize
		size := min(directive.PieceSize, end-offset)

		frag, err := receiver.readPiece(ctx, directive, offset, size)
		if err != nil {
			receiver.Metrics.ReadErrors.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"task %d offset %d: %v\n", directive.TaskID, offset, err)
			return
		}
		frag.Delay = delay

		err = receiver.next.Submit(ctx, frag)
		if err != nil {
			receiver.pool.Recycle(frag.Buf)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"task %d offset %d: failed handing off: %v\n", directive.TaskID, offset, err)
			return
		}
	}
}

// Reads and scales one piece of the local contribution
func (receiver *Receiver) readPiece(ctx context.Context, directive protocol.Directive, offset, size int64) (frag repair.Fragment, err error) {
	readStartTime := time.Now()

	buf := receiver.pool.Acquire(int(size), offset)
	n, err := receiver.source.ReadAt(buf.Bytes(), offset)
	if errors.Is(err, io.EOF) {
		// Past the end of the source counts as zeroes
		clear(buf.Bytes()[n:])
		logctx.LogEvent(ctx, global.VerbosityDebug, global.WarnLog,
			"task %d: source ends inside piece at offset %d, zero filled %d bytes\n", directive.TaskID, offset, int(size)-n)
		err = nil
	}
	if err != nil {
		receiver.pool.Recycle(buf)
		err = fmt.Errorf("failed reading local contribution: %w", err)
		return
	}

	if directive.Coef != 0 && directive.Coef != 1 {
		scaled := receiver.pool.Acquire(int(size), offset)
		err = coding.Scale(byte(directive.Coef), scaled.Bytes(), buf.Bytes())
		receiver.pool.Recycle(buf)
		if err != nil {
			receiver.pool.Recycle(scaled)
			return
		}
		buf = scaled
	}

	atomics.ObserveDuration(&receiver.Metrics.ReadSumNs, &receiver.Metrics.ReadMaxNs, time.Since(readStartTime))
	receiver.Metrics.LocalBytes.Add(uint64(size))

	frag = repair.Fragment{
		TaskID: directive.TaskID,
		Offset: offset,
		Size:   size,
		Buf:    buf,
		TarID:  directive.TarID,
		SrcNum: directive.SrcNum,
	}
	return
}
