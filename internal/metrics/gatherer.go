package metrics

import (
	"context"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"runtime/debug"
	"sync"
	"time"
)

// Polls registered sources and saves their output into a registry
type Gatherer struct {
	Interval  time.Duration // Record interval
	Retention time.Duration // Maximum time to keep slices for
	Registry  *Registry

	mu      sync.Mutex
	sources []Source
}

func NewGatherer(interval, retention time.Duration) (new *Gatherer) {
	new = &Gatherer{
		Interval:  interval,
		Retention: retention,
		Registry:  New(),
	}
	return
}

// Adds a component to the collection rounds
func (gatherer *Gatherer) Register(sources ...Source) {
	gatherer.mu.Lock()
	defer gatherer.mu.Unlock()
	for _, source := range sources {
		if source != nil {
			gatherer.sources = append(gatherer.sources, source)
		}
	}
}

func (gatherer *Gatherer) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSMetric)

	ticker := time.NewTicker(gatherer.Interval)
	defer ticker.Stop()

	var tickCount int
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			gatherer.Collect(ctx, now)

			tickCount++
			if tickCount >= 30 {
				gatherer.Registry.Prune(now, gatherer.Retention)
				tickCount = 0
			}
		}
	}
}

// Runs one collection round into the slice for now
func (gatherer *Gatherer) Collect(ctx context.Context, now time.Time) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in metric collector: %v\n%s", fatalError, debug.Stack())
		}
	}()

	timeSlice := gatherer.Registry.NewTimeSlice(now, gatherer.Interval)

	gatherer.mu.Lock()
	sources := append([]Source(nil), gatherer.sources...)
	gatherer.mu.Unlock()

	for _, source := range sources {
		gatherer.Registry.Add(timeSlice, source.CollectMetrics(gatherer.Interval))
	}
}
