// Groups fragments by task and offset, combines contributions from every source
// and forwards each finished piece downstream
package combiner

import (
	"context"
	"errors"
	"fmt"
	"pivotrepair/internal/atomics"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/coding"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/processor"
	"pivotrepair/internal/repair"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
)

// Creates a combiner with one shared queue served by workers goroutines.
// Finished pieces and announcements go to next.
func New(namespace []string, workers, queueSize int, pool *bufpool.Pool, op *coding.Operator, next repair.Sink) (new *Combiner, err error) {
	if pool == nil || next == nil {
		err = fmt.Errorf("combiner requires a buffer pool and a downstream sink")
		return
	}
	if op == nil {
		op = coding.NewXOR()
	}
	if op.Inputs() != 2 {
		err = fmt.Errorf("combiner operator must take 2 inputs, got %d", op.Inputs())
		return
	}

	new = &Combiner{
		Namespace: slices.Concat(namespace, []string{global.NSCombine}),
		tasks:     newTaskRegistry(),
		pool:      pool,
		op:        op,
		next:      next,
		newPolicy: defaultPolicy,
	}
	new.stopCtx, new.stopCancel = context.WithCancel(context.Background())
	new.proc, err = processor.New[repair.Fragment](new.Namespace, 1, workers, queueSize, new, nil)
	if err != nil {
		new = nil
		err = fmt.Errorf("failed creating combiner workers: %w", err)
		return
	}
	return
}

// Retry schedule for a downstream stage without capacity. Never gives up on its own.
func defaultPolicy() (policy backoff.BackOff) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Millisecond
	exp.MaxInterval = 100 * time.Millisecond
	exp.MaxElapsedTime = 0
	policy = exp
	return
}

func (combiner *Combiner) Start(ctx context.Context) {
	combiner.proc.Start(logctx.AppendCtxTag(ctx, global.NSCombine))
}

// Drains queued fragments and stops the workers.
// Pending forwards get one more attempt and are dropped if the next stage is still full.
func (combiner *Combiner) Stop() {
	combiner.stopCancel()
	combiner.proc.Stop()
}

func (combiner *Combiner) Submit(ctx context.Context, frag repair.Fragment) (err error) {
	err = combiner.proc.Submit(ctx, frag)
	return
}

// Number of tasks still aggregating
func (combiner *Combiner) ActiveTasks() (active int) {
	active = combiner.tasks.len()
	return
}

// Worker entry point for one fragment
func (combiner *Combiner) Process(ctx context.Context, frag repair.Fragment, _ int) {
	processingStartTime := time.Now()
	defer func() {
		atomics.ObserveDuration(&combiner.Metrics.SumNs, &combiner.Metrics.MaxNs, time.Since(processingStartTime))
	}()
	combiner.Metrics.Fragments.Add(1)

	state, reappeared := combiner.tasks.acquire(frag.TaskID)
	if reappeared {
		combiner.Metrics.Anomalies.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"task %d received fragment at offset %d after it already completed\n", frag.TaskID, frag.Offset)
	}

	var entry ledgerEntry
	if frag.IsAnnouncement() {
		combiner.Metrics.Announcements.Add(1)
		entry = ledgerEntry{kind: totalAnnouncement, bytes: frag.Size}

		err := combiner.forward(ctx, frag)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"failed forwarding announcement of task %d: %v\n", frag.TaskID, err)
		}
	} else {
		entry = ledgerEntry{kind: credit, bytes: combiner.combine(ctx, state, frag)}
	}

	complete, conflict := state.apply(entry)
	if conflict {
		combiner.Metrics.Anomalies.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"task %d announced again with a different total (%d bytes), keeping the first\n", frag.TaskID, frag.Size)
	}
	if complete {
		combiner.tasks.release(frag.TaskID, state)
		combiner.Metrics.TasksDone.Add(1)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
			"task %d combined %s in %s\n", frag.TaskID, humanize.IBytes(uint64(state.total)),
			time.Since(state.started).Round(time.Microsecond))
	}
}

// Adds frag into its piece. Returns the combined size when this call completed the piece, else 0.
func (combiner *Combiner) combine(ctx context.Context, state *taskState, frag repair.Fragment) (completedSize int64) {
	p := state.pieces.acquire(frag.Offset)

	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		combiner.Metrics.Anomalies.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"task %d offset %d got a contribution after the piece completed, dropping it\n", frag.TaskID, frag.Offset)
		combiner.pool.Recycle(frag.Buf)
		return
	}

	if p.received == 0 {
		p.frag = frag
		p.scratch = combiner.pool.Acquire(int(frag.Size), frag.Offset)
	} else {
		combiner.merge(ctx, p, frag)
	}

	p.received++
	p.expected += frag.SrcNum
	if p.received != p.expected {
		p.mu.Unlock()
		return
	}

	p.done = true
	result := p.frag
	scratch := p.scratch
	p.scratch = nil
	p.frag = repair.Fragment{}
	p.mu.Unlock()

	state.pieces.release(frag.Offset, p)
	combiner.pool.Recycle(scratch)
	combiner.Metrics.PiecesDone.Add(1)

	completedSize = result.Size
	err := combiner.forward(ctx, result)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed forwarding task %d offset %d: %v\n", result.TaskID, result.Offset, err)
		combiner.pool.Recycle(result.Buf)
	}
	return
}

// Folds frag into the accumulator. Caller holds p.mu.
func (combiner *Combiner) merge(ctx context.Context, p *piece, frag repair.Fragment) {
	p.frag.TarID += frag.TarID
	p.frag.Delay += frag.Delay

	if frag.Buf == nil {
		return
	}
	if p.frag.Buf == nil {
		p.frag.Buf = frag.Buf
		p.frag.Size = frag.Size
		return
	}

	size := p.frag.Buf.Len()
	if frag.Buf.Len() != size {
		combiner.Metrics.Anomalies.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"task %d offset %d: contribution of %d bytes does not match %d, dropping it\n",
			frag.TaskID, frag.Offset, frag.Buf.Len(), size)
		combiner.pool.Recycle(frag.Buf)
		return
	}

	if p.scratch == nil || p.scratch.Cap() < size {
		combiner.pool.Recycle(p.scratch)
		p.scratch = combiner.pool.Acquire(size, frag.Offset)
	}
	p.scratch.Resize(size)

	err := combiner.op.Combine(size, p.scratch.Bytes(), p.frag.Buf.Bytes(), frag.Buf.Bytes())
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"task %d offset %d: combine failed: %v\n", frag.TaskID, frag.Offset, err)
		combiner.pool.Recycle(frag.Buf)
		return
	}

	// result into the accumulator, incoming memory becomes the next scratch, replaced memory is released
	p.frag.Buf.Swap(p.scratch)
	p.scratch.Swap(frag.Buf)
	combiner.pool.Recycle(frag.Buf)

	p.frag.Size = int64(size)
	combiner.Metrics.Combines.Add(1)
	combiner.Metrics.CombinedBytes.Add(uint64(size))
}

// Hands frag downstream, backing off while the next stage has no capacity
func (combiner *Combiner) forward(ctx context.Context, frag repair.Fragment) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(combiner.stopCtx, cancel)
	defer stop()

	operation := func() (err error) {
		err = combiner.next.Submit(ctx, frag)
		if errors.Is(err, processor.ErrNoCapacity) {
			combiner.Metrics.ForwardRetries.Add(1)
			return
		}
		if err != nil {
			err = backoff.Permanent(err)
		}
		return
	}

	err = backoff.Retry(operation, backoff.WithContext(combiner.newPolicy(), ctx))
	if err != nil {
		combiner.Metrics.ForwardErrors.Add(1)
	}
	return
}
