package receiver

import (
	"pivotrepair/internal/metrics"
	"time"
)

func (receiver *Receiver) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   receiver.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	jobs := receiver.Metrics.LocalJobs.Swap(0)
	sumNs := receiver.Metrics.ReadSumNs.Swap(0)
	var avgNs uint64
	if jobs > 0 {
		avgNs = sumNs / jobs
	}

	add("local_jobs_total", jobs, "count", metrics.Counter, "Local contribution jobs handled in the interval")
	add("local_bytes", receiver.Metrics.LocalBytes.Swap(0), "bytes", metrics.Counter, "Bytes read from the load source in the interval")
	add("peer_fragments_total", receiver.Metrics.PeerFragments.Swap(0), "count", metrics.Counter, "Fragments received from peers in the interval")
	add("peer_bytes", receiver.Metrics.PeerBytes.Swap(0), "bytes", metrics.Counter, "Payload bytes received from peers in the interval")
	add("read_errors_total", receiver.Metrics.ReadErrors.Swap(0), "count", metrics.Counter, "Failed local reads or peer streams in the interval")
	add("streams_active", uint64(max(receiver.Metrics.Streams.Load(), 0)), "count", metrics.Gauge, "Peer stream readers running")
	add("read_time_avg_ns", avgNs, "ns", metrics.Summary, "Average local read time per job in the interval")
	add("read_time_max_ns", receiver.Metrics.ReadMaxNs.Swap(0), "ns", metrics.Summary, "Maximum (seen) local piece read time in the interval")

	collection = append(collection, receiver.proc.CollectMetrics(interval)...)
	return
}
