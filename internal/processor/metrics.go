package processor

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (proc *Processor[T]) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	submitted := proc.Metrics.Submitted.Swap(0)
	rejected := proc.Metrics.Rejected.Swap(0)
	processed := proc.Metrics.Processed.Swap(0)
	panics := proc.Metrics.Panics.Swap(0)
	sumNs := proc.Metrics.SumNs.Swap(0)
	maxNs := proc.Metrics.MaxNs.Swap(0)

	recordTime := time.Now()

	var avgNs uint64
	if processed > 0 {
		avgNs = sumNs / processed
	}

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   proc.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("submitted_total", submitted, "count", metrics.Counter, "Items accepted into a queue in the interval")
	add("rejected_total", rejected, "count", metrics.Counter, "Items refused for lack of capacity in the interval")
	add("processed_total", processed, "count", metrics.Counter, "Items handled by workers in the interval")
	add("panics_total", panics, "count", metrics.Counter, "Recovered worker panics in the interval")
	add("elapsed_time_avg_ns", avgNs, "ns", metrics.Summary, "Average handling time in the interval")
	add("elapsed_time_max_ns", maxNs, "ns", metrics.Summary, "Maximum (seen) handling time in the interval")

	for _, queue := range proc.queues {
		collection = append(collection, queue.CollectMetrics(interval)...)
	}
	return
}
