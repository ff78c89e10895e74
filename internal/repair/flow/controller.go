// Final pipeline stage. Every task is pinned to one worker which writes or relays
// its combined fragments and reports when the task's byte volume is exhausted.
package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"pivotrepair/internal/atomics"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/processor"
	"pivotrepair/internal/repair"
	"pivotrepair/internal/storage"
	"pivotrepair/pkg/protocol"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/utils/clock"
)

func New(namespace []string, cfg Config) (new *Controller, err error) {
	if cfg.Workers <= 0 {
		err = fmt.Errorf("flow controller needs at least one worker, got %d", cfg.Workers)
		return
	}
	if cfg.Pool == nil || cfg.Link == nil {
		err = fmt.Errorf("flow controller requires a buffer pool and a link")
		return
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Fatal == nil {
		cfg.Fatal = exitOnFatal
	}

	new = &Controller{
		Namespace: slices.Concat(namespace, []string{global.NSFlow}),
		self:      cfg.Self,
		slots:     newSlotPool(cfg.Workers),
		workers:   make([]workerState, cfg.Workers),
		pool:      cfg.Pool,
		store:     cfg.Store,
		link:      cfg.Link,
		limiter:   cfg.Limiter,
		clock:     cfg.Clock,
		onDone:    cfg.OnTaskDone,
		fatal:     cfg.Fatal,
		destLocks: make(map[int64]*sync.Mutex),
	}

	// One queue per worker keeps a pinned task on its worker
	new.proc, err = processor.New[repair.Fragment](new.Namespace, cfg.Workers, 1, cfg.QueueSize, new, new.affinity)
	if err != nil {
		new = nil
		err = fmt.Errorf("failed creating flow workers: %w", err)
		return
	}
	return
}

func exitOnFatal(ctx context.Context, err error) {
	logctx.LogEvent(ctx, global.VerbosityNone, global.ErrorLog, "fatal: %v\n", err)
	if logger := logctx.GetLogger(ctx); logger != nil {
		logger.Wake()
	}
	os.Exit(1)
}

func (controller *Controller) affinity(frag repair.Fragment) (queueID int, ok bool) {
	queueID, ok = controller.slots.route(frag.TaskID)
	return
}

func (controller *Controller) Start(ctx context.Context) {
	controller.proc.Start(logctx.AppendCtxTag(ctx, global.NSFlow))
}

func (controller *Controller) Stop() {
	controller.proc.Stop()
}

// Queues frag on its task's worker. Returns processor.ErrNoCapacity when every worker is busy with another task.
func (controller *Controller) Submit(ctx context.Context, frag repair.Fragment) (err error) {
	err = controller.proc.Submit(ctx, frag)
	return
}

// Workers not pinned to a task
func (controller *Controller) FreeWorkers() (free int) {
	free = controller.slots.available()
	return
}

func (controller *Controller) Process(ctx context.Context, frag repair.Fragment, worker int) {
	controller.Metrics.Fragments.Add(1)
	state := &controller.workers[worker]
	if state.started.IsZero() {
		state.started = controller.clock.Now()
	}

	if frag.Buf != nil {
		if frag.TarID == controller.self {
			state.stored = true
			controller.storeLocal(ctx, frag)
		} else {
			state.target = frag.TarID
			controller.relay(ctx, frag)
		}
		state.remaining -= frag.Size
		state.handled += uint64(frag.Size)
		controller.pool.Recycle(frag.Buf)
	} else {
		state.remaining += frag.Size
	}

	if state.remaining != 0 {
		return
	}
	controller.finish(ctx, frag.TaskID, worker)
}

func (controller *Controller) storeLocal(ctx context.Context, frag repair.Fragment) {
	if controller.store == nil {
		controller.fatal(ctx, fmt.Errorf("task %d targets this node but no store is configured", frag.TaskID))
		return
	}

	err := controller.store.WriteAt(frag.Offset, frag.Buf.Bytes())
	if errors.Is(err, storage.ErrOpen) {
		controller.fatal(ctx, err)
		return
	}
	if err != nil {
		controller.Metrics.StoreErrors.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"task %d: %v\n", frag.TaskID, err)
		return
	}
	controller.Metrics.StoredBytes.Add(uint64(frag.Buf.Len()))
}

func (controller *Controller) destLock(nodeID int64) (lock *sync.Mutex) {
	controller.destMu.Lock()
	defer controller.destMu.Unlock()

	lock, ok := controller.destLocks[nodeID]
	if !ok {
		lock = &sync.Mutex{}
		controller.destLocks[nodeID] = lock
	}
	return
}

// Sends frag to its target, then holds the worker until the pacing delay has passed
func (controller *Controller) relay(ctx context.Context, frag repair.Fragment) {
	payload := frag.Buf.Bytes()

	if controller.limiter != nil {
		err := controller.limiter.Wait(ctx, len(payload))
		if err != nil {
			controller.Metrics.RelayErrors.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"task %d: bandwidth wait aborted: %v\n", frag.TaskID, err)
			return
		}
	}

	sendTime := controller.clock.Now()
	header := protocol.FragmentHeader{TaskID: frag.TaskID, Offset: frag.Offset, Size: int64(len(payload))}

	lock := controller.destLock(frag.TarID)
	lock.Lock()
	err := protocol.SendFragment(controller.link, frag.TarID, header, payload)
	lock.Unlock()

	atomics.ObserveDuration(&controller.Metrics.RelaySumNs, &controller.Metrics.RelayMaxNs, controller.clock.Since(sendTime))
	if err != nil {
		controller.Metrics.RelayErrors.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"task %d offset %d: %v\n", frag.TaskID, frag.Offset, err)
		return
	}
	controller.Metrics.RelayedBytes.Add(uint64(len(payload)))

	if frag.Delay <= 0 {
		return
	}
	wait := sendTime.Add(time.Duration(frag.Delay) * time.Microsecond).Sub(controller.clock.Now())
	if wait <= 0 {
		return
	}
	select {
	case <-controller.clock.After(wait):
		controller.Metrics.PacingWaitNs.Add(uint64(wait.Nanoseconds()))
	case <-ctx.Done():
	}
}

// Releases the task's worker and reports completion
func (controller *Controller) finish(ctx context.Context, taskID int64, worker int) {
	state := &controller.workers[worker]
	summary := repair.TaskSummary{
		TaskID: taskID,
		Bytes:  state.handled,
		Stored: state.stored,
		Target: state.target,
		Start:  state.started.UnixNano(),
		End:    controller.clock.Now().UnixNano(),
	}
	if state.stored {
		summary.Target = controller.self
	}
	*state = workerState{}

	controller.slots.unpin(taskID)

	if summary.Stored {
		err := protocol.SendID(controller.link, global.CoordinatorID, taskID)
		if err != nil {
			controller.Metrics.AckErrors.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"task %d: completion ack failed: %v\n", taskID, err)
		}
	}

	controller.Metrics.TasksDone.Add(1)
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"task %d finished, %s %s\n", taskID, humanize.IBytes(summary.Bytes), role(summary.Stored))

	if controller.onDone != nil {
		controller.onDone(ctx, summary)
	}
	controller.slots.release(worker)
}

func role(stored bool) (name string) {
	name = "relayed"
	if stored {
		name = "stored"
	}
	return
}
