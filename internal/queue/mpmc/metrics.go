package mpmc

import (
	"pivotrepair/internal/metrics"
	"sync/atomic"
	"time"
)

type MetricStorage struct {
	Depth atomic.Uint64 // Current items in queue
	Bytes atomic.Uint64 // Current byte size in queue (payload only)

	PushAttempts atomic.Uint64 // every Push call on an open queue
	PushSuccess  atomic.Uint64
	PushFull     atomic.Uint64 // rejected, no free cell

	PopSuccess atomic.Uint64
	PopWaits   atomic.Uint64 // times a consumer blocked on an empty queue
}

func (queue *Queue[T]) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   queue.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("depth", queue.Metrics.Depth.Load(), "count", metrics.Gauge, "Current number of items in the queue")
	add("byte_sum", queue.Metrics.Bytes.Load(), "bytes", metrics.Gauge, "Byte sum of all items in the queue")
	add("push_attempts", queue.Metrics.PushAttempts.Swap(0), "count", metrics.Counter, "Push attempts in the interval")
	add("push_success", queue.Metrics.PushSuccess.Swap(0), "count", metrics.Counter, "Successful pushes in the interval")
	add("push_full", queue.Metrics.PushFull.Swap(0), "count", metrics.Counter, "Pushes rejected by a full queue in the interval")
	add("pop_success", queue.Metrics.PopSuccess.Swap(0), "count", metrics.Counter, "Successful pops in the interval")
	add("pop_waits", queue.Metrics.PopWaits.Swap(0), "count", metrics.Counter, "Times a consumer waited on an empty queue in the interval")
	return
}
