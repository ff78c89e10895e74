package combiner

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (combiner *Combiner) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	fragments := combiner.Metrics.Fragments.Swap(0)
	sumNs := combiner.Metrics.SumNs.Swap(0)

	var avgNs uint64
	if fragments > 0 {
		avgNs = sumNs / fragments
	}

	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   combiner.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("fragments_total", fragments, "count", metrics.Counter, "Fragments handled in the interval")
	add("announcements_total", combiner.Metrics.Announcements.Swap(0), "count", metrics.Counter, "Task volume announcements passed through in the interval")
	add("combines_total", combiner.Metrics.Combines.Swap(0), "count", metrics.Counter, "Pairwise combine operations in the interval")
	add("combined_bytes", combiner.Metrics.CombinedBytes.Swap(0), "bytes", metrics.Counter, "Bytes run through the combine operator in the interval")
	add("pieces_done_total", combiner.Metrics.PiecesDone.Swap(0), "count", metrics.Counter, "Pieces completed and forwarded in the interval")
	add("tasks_done_total", combiner.Metrics.TasksDone.Swap(0), "count", metrics.Counter, "Tasks fully accounted for in the interval")
	add("forward_retries_total", combiner.Metrics.ForwardRetries.Swap(0), "count", metrics.Counter, "Forwards retried for lack of downstream capacity in the interval")
	add("forward_errors_total", combiner.Metrics.ForwardErrors.Swap(0), "count", metrics.Counter, "Forwards abandoned in the interval")
	add("anomalies_total", combiner.Metrics.Anomalies.Swap(0), "count", metrics.Counter, "Accounting anomalies logged in the interval")
	add("active_tasks", uint64(combiner.tasks.len()), "count", metrics.Gauge, "Tasks currently aggregating")
	add("elapsed_time_avg_ns", avgNs, "ns", metrics.Summary, "Average time per fragment in the interval")
	add("elapsed_time_max_ns", combiner.Metrics.MaxNs.Swap(0), "ns", metrics.Summary, "Maximum (seen) time per fragment in the interval")

	collection = append(collection, combiner.proc.CollectMetrics(interval)...)
	return
}
