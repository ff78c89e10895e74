package beats

import (
	"context"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/repair"
	"time"
)

// Sends the completion of one task on this node. Safe on a nil reporter.
func (reporter *Reporter) Report(ctx context.Context, summary repair.TaskSummary) (err error) {
	if reporter == nil {
		return
	}

	role := "relay"
	if summary.Stored {
		role = "store"
	}
	took := elapsed(summary.Start, summary.End)

	fields := map[string]interface{}{
		// Minimum required fields
		"@timestamp": time.Unix(0, summary.End).UTC(),
		"message": fmt.Sprintf("task %d finished on node %d (%s, %d bytes)",
			summary.TaskID, reporter.nodeID, role, summary.Bytes),

		"host": map[string]interface{}{
			"name": global.Hostname,
		},
		"agent": map[string]interface{}{
			"program": global.ProgBaseName,
			"version": global.ProgVersion,
			"pid":     os.Getpid(),
		},
		"repair": map[string]interface{}{
			"task":       summary.TaskID,
			"node":       reporter.nodeID,
			"target":     summary.Target,
			"role":       role,
			"bytes":      summary.Bytes,
			"elapsed_ms": took.Milliseconds(),
		},
	}
	events := []interface{}{fields}

	_, err = reporter.sink.Send(events)
	if err != nil {
		reporter.Metrics.Failed.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"failed exporting completion of task %d: %v\n", summary.TaskID, err)
		return
	}
	reporter.Metrics.Sent.Add(1)
	return
}
