package beats

import "sync/atomic"

// Subset of the lumberjack sync client used here
type eventSender interface {
	Send(data []interface{}) (int, error)
	Close() error
}

// Sends one event per finished task to a beats (lumberjack v2) endpoint
type Reporter struct {
	Namespace []string
	nodeID    int64
	sink      eventSender

	Metrics MetricStorage
}

type MetricStorage struct {
	Sent   atomic.Uint64
	Failed atomic.Uint64
}
