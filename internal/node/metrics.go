package node

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (daemon *Daemon) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   daemon.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("directives_total", daemon.Metrics.Directives.Swap(0), "count", metrics.Counter, "Directives received from the coordinator in the interval")
	add("tasks_total", daemon.Metrics.Tasks.Swap(0), "count", metrics.Counter, "Task directives received in the interval")
	add("source_ids_total", daemon.Metrics.PeerIDs.Swap(0), "count", metrics.Counter, "Source node ids received in the interval")
	add("bandwidth_commands_total", daemon.Metrics.BandwidthCmds.Swap(0), "count", metrics.Counter, "Bandwidth control directives handled in the interval")
	add("tasks_completed_total", daemon.Metrics.TasksCompleted.Swap(0), "count", metrics.Counter, "Tasks finished by this node in the interval")
	add("control_errors_total", daemon.Metrics.ControlErrors.Swap(0), "count", metrics.Counter, "Control loop failures in the interval")
	add("state", uint64(daemon.State()), "state", metrics.Gauge, "Daemon state (0 idle, 1 connected, 2 running, 3 draining, 4 stopped)")
	if daemon.shaper != nil {
		add("relay_rate_limit", daemon.shaper.Rate(), "bytes/s", metrics.Gauge, "Relay bandwidth limit, 0 for unlimited")
	}
	return
}
