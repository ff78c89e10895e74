// Central registry for storing time-sliced metrics from pipeline components
package metrics

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Creates new metric registry storage
func New() (new *Registry) {
	new = &Registry{
		slices: make(map[time.Time]timeSlice),
	}
	return
}

// Opens (or reuses) the slice that now falls into
func (registry *Registry) NewTimeSlice(now time.Time, interval time.Duration) (slot time.Time) {
	slot = now
	if interval > 0 {
		slot = now.Truncate(interval)
	}

	registry.mu.Lock()
	if _, ok := registry.slices[slot]; !ok {
		registry.slices[slot] = make(timeSlice)
	}
	registry.mu.Unlock()
	return
}

// Stores a batch into an open slice. Later values replace earlier ones of the same name and namespace.
func (registry *Registry) Add(slot time.Time, batch []Metric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	slice, ok := registry.slices[slot]
	if !ok {
		return
	}
	for _, metric := range batch {
		slice[seriesKey{namespace: strings.Join(metric.Namespace, "/"), name: metric.Name}] = metric
	}
}

// Drops slices older than maxAge at currentTime
func (registry *Registry) Prune(currentTime time.Time, maxAge time.Duration) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for slot := range registry.slices {
		if currentTime.Sub(slot) > maxAge {
			delete(registry.slices, slot)
		}
	}
}

// Metrics matching q, oldest slice first and ordered by namespace then name within a slice
func (registry *Registry) Search(q Query) (results []Metric) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var slots []time.Time
	for slot := range registry.slices {
		if !q.Start.IsZero() && slot.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && slot.After(q.End) {
			continue
		}
		slots = append(slots, slot)
	}
	slices.SortFunc(slots, func(a, b time.Time) int { return a.Compare(b) })

	for _, slot := range slots {
		keys := make([]seriesKey, 0, len(registry.slices[slot]))
		for key, metric := range registry.slices[slot] {
			if q.matches(metric) {
				keys = append(keys, key)
			}
		}
		slices.SortFunc(keys, func(a, b seriesKey) int {
			return cmp.Or(strings.Compare(a.namespace, b.namespace), strings.Compare(a.name, b.name))
		})
		for _, key := range keys {
			results = append(results, registry.slices[slot][key])
		}
	}
	return
}

// Every metric of the newest non-empty slice
func (registry *Registry) Latest() (results []Metric) {
	registry.mu.RLock()
	var newest time.Time
	for slot, slice := range registry.slices {
		if len(slice) > 0 && slot.After(newest) {
			newest = slot
		}
	}
	registry.mu.RUnlock()

	if newest.IsZero() {
		return
	}
	results = registry.Search(Query{Start: newest, End: newest})
	return
}

// Empty name and namespace match everything. The namespace matches as a prefix.
func (q Query) matches(metric Metric) (ok bool) {
	if q.Name != "" && metric.Name != q.Name {
		return
	}
	if len(metric.Namespace) < len(q.Namespace) {
		return
	}
	ok = slices.Equal(metric.Namespace[:len(q.Namespace)], q.Namespace)
	return
}
