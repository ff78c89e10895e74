// Local destination for repaired fragments
package storage

import (
	"errors"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/metrics"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Returned (wrapped) when the destination could not be opened. Callers treat it as fatal.
var ErrOpen = errors.New("failed to open store file")

type Writer struct {
	Namespace []string
	path      string

	mu   sync.Mutex // serializes open and writes
	sink *os.File

	Metrics MetricStorage
}

type MetricStorage struct {
	Writes       atomic.Uint64
	BytesWritten atomic.Uint64
	Failures     atomic.Uint64
}

// Creates a writer for path. The file is opened on the first write.
func New(namespace []string, path string) (new *Writer, err error) {
	if path == "" {
		err = fmt.Errorf("store path is required")
		return
	}
	new = &Writer{
		Namespace: slices.Concat(namespace, []string{global.NSStore}),
		path:      path,
	}
	return
}

func (writer *Writer) Path() (path string) {
	path = writer.path
	return
}

// Writes data at offset, opening the destination if needed
func (writer *Writer) WriteAt(offset int64, data []byte) (err error) {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.sink == nil {
		writer.sink, err = os.OpenFile(writer.path, os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			writer.sink = nil
			writer.Metrics.Failures.Add(1)
			err = fmt.Errorf("%w %q: %v", ErrOpen, writer.path, err)
			return
		}
	}

	n, err := writer.sink.WriteAt(data, offset)
	writer.Metrics.BytesWritten.Add(uint64(n))
	if err != nil {
		writer.Metrics.Failures.Add(1)
		err = fmt.Errorf("failed writing %d bytes at offset %d: %w", len(data), offset, err)
		return
	}
	writer.Metrics.Writes.Add(1)
	return
}

// Flushes and closes the destination if it was opened
func (writer *Writer) Close() (err error) {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.sink == nil {
		return
	}
	err = writer.sink.Sync()
	closeErr := writer.sink.Close()
	if err == nil {
		err = closeErr
	}
	writer.sink = nil
	return
}

func (writer *Writer) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	add := func(name string, raw uint64, unit string, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   writer.Namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value:       metrics.MetricValue{Raw: raw, Unit: unit, Interval: interval},
		})
	}

	add("writes_total", writer.Metrics.Writes.Swap(0), "count", "Fragments written locally in the interval")
	add("written_bytes", writer.Metrics.BytesWritten.Swap(0), "bytes", "Bytes written locally in the interval")
	add("write_failures", writer.Metrics.Failures.Swap(0), "count", "Failed opens or writes in the interval")
	return
}
