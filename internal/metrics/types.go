package metrics

import (
	"sync"
	"time"
)

type Registry struct {
	mu     sync.RWMutex
	slices map[time.Time]timeSlice
}

type seriesKey struct {
	namespace string // components joined by "/"
	name      string
}

type timeSlice map[seriesKey]Metric

// Registry filter. Zero Start/End leave the window open.
type Query struct {
	Name      string
	Namespace []string
	Start     time.Time
	End       time.Time
}

type MetricType string

const (
	Counter MetricType = "counter" // events counted in the interval
	Gauge   MetricType = "gauge"   // can go up/down
	Summary MetricType = "summary" // avg/min/max
)

// Container for a metric and associated data
type Metric struct {
	Name        string // e.g. stored_bytes, queue_depth
	Description string
	Namespace   []string // e.g. "Node/Flow/Worker/0"
	Value       MetricValue
	Type        MetricType
	Timestamp   time.Time // time when the metric was recorded
}

// Specific value of a metric
type MetricValue struct {
	Raw      interface{}   // uint64, int64, float64
	Unit     string        // e.g., "ns", "bytes", "count"
	Interval time.Duration // measurement window
}

// Any pipeline component that reports metrics per interval
type Source interface {
	CollectMetrics(interval time.Duration) []Metric
}
