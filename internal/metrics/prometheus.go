package metrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace string = "pivotrepair"

// Exposes the newest registry slice as prometheus samples.
// Registered unchecked (no fixed descriptors) because the metric set follows the running pipeline.
type Collector struct {
	registry *Registry
}

func NewCollector(registry *Registry) (collector *Collector) {
	collector = &Collector{registry: registry}
	return
}

func (collector *Collector) Describe(chan<- *prometheus.Desc) {}

func (collector *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range collector.registry.Latest() {
		value, ok := toFloat(metric.Value.Raw)
		if !ok {
			continue
		}

		valueType := prometheus.GaugeValue
		if metric.Type == Summary {
			valueType = prometheus.UntypedValue
		}

		desc := prometheus.NewDesc(
			prometheus.BuildFQName(promNamespace, "", metric.Name),
			metric.Description,
			[]string{"component", "unit"},
			nil,
		)
		sample, err := prometheus.NewConstMetric(desc, valueType, value,
			strings.Join(metric.Namespace, "/"), metric.Value.Unit)
		if err != nil {
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(metric.Timestamp, sample)
	}
}

// HTTP handler serving the registry in prometheus exposition format
func Handler(registry *Registry) (handler http.Handler, err error) {
	promRegistry := prometheus.NewRegistry()
	err = promRegistry.Register(NewCollector(registry))
	if err != nil {
		err = fmt.Errorf("failed registering metric collector: %w", err)
		return
	}

	handler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	return
}

func toFloat(raw interface{}) (value float64, ok bool) {
	ok = true
	switch v := raw.(type) {
	case uint64:
		value = float64(v)
	case int64:
		value = float64(v)
	case int:
		value = float64(v)
	case float64:
		value = v
	default:
		ok = false
	}
	return
}
