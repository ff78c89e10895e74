package flow

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (controller *Controller) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   controller.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("fragments_total", controller.Metrics.Fragments.Swap(0), "count", metrics.Counter, "Fragments handled in the interval")
	add("stored_bytes", controller.Metrics.StoredBytes.Swap(0), "bytes", metrics.Counter, "Bytes written locally in the interval")
	add("relayed_bytes", controller.Metrics.RelayedBytes.Swap(0), "bytes", metrics.Counter, "Bytes relayed to the next node in the interval")
	add("relay_errors_total", controller.Metrics.RelayErrors.Swap(0), "count", metrics.Counter, "Failed relays in the interval")
	add("store_errors_total", controller.Metrics.StoreErrors.Swap(0), "count", metrics.Counter, "Failed local writes in the interval")
	add("tasks_done_total", controller.Metrics.TasksDone.Swap(0), "count", metrics.Counter, "Tasks finished on this node in the interval")
	add("ack_errors_total", controller.Metrics.AckErrors.Swap(0), "count", metrics.Counter, "Completion acks that failed in the interval")
	add("pacing_wait_ns", controller.Metrics.PacingWaitNs.Swap(0), "ns", metrics.Counter, "Time workers spent pacing relays in the interval")
	add("relay_time_sum_ns", controller.Metrics.RelaySumNs.Swap(0), "ns", metrics.Counter, "Time spent sending relays in the interval")
	add("relay_time_max_ns", controller.Metrics.RelayMaxNs.Swap(0), "ns", metrics.Summary, "Maximum (seen) relay send time in the interval")
	add("free_workers", uint64(controller.FreeWorkers()), "count", metrics.Gauge, "Workers not pinned to a task")

	collection = append(collection, controller.proc.CollectMetrics(interval)...)
	return
}
