package beats

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (reporter *Reporter) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   reporter.Namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: "count", Interval: interval},
		})
	}

	add("events_sent_total", reporter.Metrics.Sent.Swap(0), "Completion events accepted by the beats server in the interval")
	add("events_failed_total", reporter.Metrics.Failed.Swap(0), "Completion events that could not be exported in the interval")
	return
}
