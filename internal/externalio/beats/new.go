// Export of task completion events to a beats server
package beats

import (
	"fmt"
	"pivotrepair/internal/global"
	"slices"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
)

// Creates new beats (lumberjack) reporter. Returns nil nil if no endpoint.
func NewReporter(namespace []string, endpoint string, nodeID int64) (new *Reporter, err error) {
	if endpoint == "" {
		return
	}

	compression := lumberjack.CompressionLevel(0)
	timeout := lumberjack.Timeout(global.BeatsConnectTimeout)

	ljClient, err := lumberjack.SyncDial(endpoint, compression, timeout)
	if err != nil {
		err = fmt.Errorf("failed connection to beats server: %w", err)
		return
	}

	new = newReporter(namespace, ljClient, nodeID)
	return
}

func newReporter(namespace []string, sink eventSender, nodeID int64) (new *Reporter) {
	new = &Reporter{
		Namespace: slices.Concat(namespace, []string{global.NSoBeats}),
		nodeID:    nodeID,
		sink:      sink,
	}
	return
}

// Gracefully stops the reporter
func (reporter *Reporter) Shutdown() (err error) {
	if reporter == nil {
		return
	}
	if reporter.sink != nil {
		err = reporter.sink.Close()
	}
	return
}

func elapsed(start, end int64) (took time.Duration) {
	if start == 0 || end < start {
		return
	}
	took = time.Duration(end - start)
	return
}
