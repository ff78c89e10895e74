package coordinator

import (
	"context"
	"fmt"
	"io"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/schedule"
	"time"

	"github.com/dustin/go-humanize"
)

// Runs the whole plan once per bandwidth round. Rounds 0 runs it once without touching node bandwidth.
// The session stays open, Close ends it.
func (coordinator *Coordinator) Run(ctx context.Context, newProvider func() (schedule.Provider, error), rounds int) (err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSCoord)

	if rounds > 0 {
		err = coordinator.ReloadNodeBandwidth(ctx)
		if err != nil {
			err = fmt.Errorf("failed rewinding node bandwidth profiles: %w", err)
			return
		}
	}

	passes := max(rounds, 1)
	for round := 0; round < passes; round++ {
		var provider schedule.Provider
		provider, err = newProvider()
		if err != nil {
			err = fmt.Errorf("failed loading plan: %w", err)
			return
		}
		coordinator.SetProvider(provider)

		if rounds > 0 {
			err = coordinator.SetNewNodeBandwidth(ctx)
			if err != nil {
				err = fmt.Errorf("round %d: failed setting node bandwidth: %w", round+1, err)
				closeProvider(provider)
				return
			}
		}

		err = coordinator.runPlan(ctx, round+1)
		closeProvider(provider)
		if err != nil {
			return
		}
	}
	return
}

func (coordinator *Coordinator) runPlan(ctx context.Context, round int) (err error) {
	startTime := time.Now()
	bytesBefore := coordinator.Metrics.Bytes.Load()

	var sets int
	for coordinator.NextGroup() {
		sets++
		capacity := coordinator.Capacity()

		var maxTasks int
		maxTasks, err = coordinator.DoTaskGroups(ctx)
		if err != nil {
			err = fmt.Errorf("round %d set %d: %w", round, sets, err)
			return
		}
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
			"round %d set %d done: up to %d concurrent tasks, planned capacity %s/s\n",
			round, sets, maxTasks, humanize.IBytes(capacity))
	}

	if failing, ok := coordinator.provider.(interface{ Err() error }); ok && failing.Err() != nil {
		err = fmt.Errorf("round %d: plan ended early: %w", round, failing.Err())
		return
	}

	elapsed := time.Since(startTime)
	repaired := coordinator.Metrics.Bytes.Load() - bytesBefore
	var rate uint64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = uint64(float64(repaired) / secs)
	}
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"round %d: repaired %s in %v (%s/s)\n",
		round, humanize.IBytes(repaired), elapsed.Round(time.Millisecond), humanize.IBytes(rate))
	return
}

func closeProvider(provider schedule.Provider) {
	if closer, ok := provider.(io.Closer); ok {
		_ = closer.Close()
	}
}
