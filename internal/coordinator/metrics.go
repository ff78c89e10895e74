package coordinator

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (coordinator *Coordinator) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   coordinator.Namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("groups_total", coordinator.Metrics.Groups.Swap(0), "count", "Task groups finished in the interval")
	add("directives_total", coordinator.Metrics.Directives.Swap(0), "count", "Task directives delivered in the interval")
	add("acks_total", coordinator.Metrics.Acks.Swap(0), "count", "Completion acks received in the interval")
	add("unexpected_acks_total", coordinator.Metrics.BadAcks.Swap(0), "count", "Acks for tasks outside the running group in the interval")
	return
}
