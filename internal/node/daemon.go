// Repair node daemon: connects to the mesh, runs the pipeline and follows the coordinator
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"pivotrepair/internal/bandwidth"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/externalio/beats"
	"pivotrepair/internal/global"
	"pivotrepair/internal/lifecycle"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/metrics"
	"pivotrepair/internal/repair"
	"pivotrepair/internal/repair/combiner"
	"pivotrepair/internal/repair/flow"
	"pivotrepair/internal/repair/receiver"
	"pivotrepair/internal/storage"
	"pivotrepair/internal/transport"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Create new node daemon instance
func NewDaemon(cfg Config) (new *Daemon) {
	ctx, cancel := context.WithCancel(context.Background())
	new = &Daemon{
		Namespace:   []string{global.NSNode},
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		controlDone: make(chan struct{}),
	}
	new.connect = new.connectTCP
	new.fatal = exitOnFatal
	return
}

func (daemon *Daemon) connectTCP(ctx context.Context) (mesh *transport.Mesh, err error) {
	mesh, err = transport.ConnectTCP(ctx, daemon.Namespace, daemon.cfg.NodeID, daemon.cfg.Addresses, transport.Options{
		Secret:      daemon.cfg.Secret,
		DialTimeout: daemon.cfg.DialTimeout,
	})
	return
}

func exitOnFatal(ctx context.Context, err error) {
	logctx.LogEvent(ctx, global.VerbosityNone, global.ErrorLog, "fatal: %v\n", err)
	_ = lifecycle.NotifyStatus(ctx, "Stopped on fatal error. Check daemon logs.")
	if logger := logctx.GetLogger(ctx); logger != nil {
		logger.Wake()
	}
	os.Exit(1)
}

// Opens local files, connects to every node and starts the pipeline and control loop.
// Shuts down what was already started if any step fails.
func (daemon *Daemon) Start(globalCtx context.Context) (err error) {
	// New context for the daemon
	daemon.ctx, daemon.cancel = context.WithCancel(context.Background())
	daemon.ctx = context.WithValue(daemon.ctx, global.LoggerKey, logctx.GetLogger(globalCtx))
	daemon.ctx = logctx.AppendCtxTag(daemon.ctx, global.NSNode, strconv.FormatInt(daemon.cfg.NodeID, 10))

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Starting...\n")
	daemon.cfg.setDefaults()

	if global.Hostname == "" {
		global.Hostname, _ = os.Hostname()
	}

	defer func() {
		if err != nil {
			daemon.Shutdown()
		}
	}()

	// Local files
	daemon.source, err = os.Open(daemon.cfg.LoadPath)
	if err != nil {
		err = fmt.Errorf("failed opening load file: %w", err)
		return
	}
	daemon.store, err = storage.New(daemon.Namespace, daemon.cfg.StorePath)
	if err != nil {
		err = fmt.Errorf("failed creating store: %w", err)
		return
	}

	daemon.profile = bandwidth.NewProfile(daemon.Namespace)
	daemon.shaper = bandwidth.NewShaper()
	if daemon.cfg.BandwidthPath != "" {
		err = daemon.profile.Open(daemon.cfg.BandwidthPath)
		if err != nil {
			err = fmt.Errorf("failed opening bandwidth profile: %w", err)
			return
		}
	}

	daemon.pool, err = bufpool.New(daemon.Namespace, int(daemon.cfg.BlockSize), daemon.cfg.BlockNum)
	if err != nil {
		err = fmt.Errorf("failed creating buffer pool: %w", err)
		return
	}

	// Mesh
	daemon.link, err = daemon.connect(daemon.ctx)
	if err != nil {
		err = fmt.Errorf("failed connecting node mesh: %w", err)
		return
	}
	daemon.advance(StateConnected)
	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"connected to %d peers\n", len(daemon.link.Peers()))

	// Completion export
	daemon.beats, err = beats.NewReporter(daemon.Namespace, daemon.cfg.BeatsAddress, daemon.cfg.NodeID)
	if err != nil {
		err = fmt.Errorf("failed creating beats reporter: %w", err)
		return
	}

	// Stage 3 - Flow Controller
	daemon.Flow, err = flow.New(daemon.Namespace, flow.Config{
		Self:       daemon.cfg.NodeID,
		Workers:    daemon.cfg.FlowWorkers,
		QueueSize:  daemon.cfg.QueueSize,
		Pool:       daemon.pool,
		Store:      daemon.store,
		Link:       daemon.link,
		Limiter:    daemon.shaper,
		OnTaskDone: daemon.taskDone,
		Fatal:      daemon.fatal,
	})
	if err != nil {
		err = fmt.Errorf("failed creating flow controller: %w", err)
		return
	}

	// Stage 2 - Combiner
	daemon.Combiner, err = combiner.New(daemon.Namespace, daemon.cfg.CombineWorkers, daemon.cfg.QueueSize,
		daemon.pool, nil, daemon.Flow)
	if err != nil {
		err = fmt.Errorf("failed creating combiner: %w", err)
		return
	}

	// Stage 1 - Receiver
	daemon.Receiver, err = receiver.New(daemon.Namespace, receiver.Config{
		Self:      daemon.cfg.NodeID,
		Source:    daemon.source,
		Link:      daemon.link,
		Pool:      daemon.pool,
		Next:      daemon.Combiner,
		Workers:   daemon.cfg.ReceiveWorkers,
		QueueSize: daemon.cfg.QueueSize,
	})
	if err != nil {
		err = fmt.Errorf("failed creating receiver: %w", err)
		return
	}

	// Downstream first so nothing is handed to a stage without workers
	daemon.Flow.Start(daemon.ctx)
	daemon.Combiner.Start(daemon.ctx)
	daemon.Receiver.Start(daemon.ctx)

	if daemon.cfg.MetricsEnabled {
		err = daemon.startMetrics()
		if err != nil {
			return
		}
	}

	// Control loop
	controlCtx, controlCancel := context.WithCancel(logctx.AppendCtxTag(daemon.ctx, global.NSControl))
	daemon.controlCancel = controlCancel
	go func() {
		defer close(daemon.controlDone)
		daemon.controlLoop(controlCtx)
	}()
	daemon.advance(StateRunning)

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Startup complete: %d x %s buffers, %d flow workers.\n",
		daemon.cfg.BlockNum, humanize.IBytes(daemon.cfg.BlockSize), daemon.cfg.FlowWorkers)
	return
}

func (daemon *Daemon) startMetrics() (err error) {
	daemon.gatherer = metrics.NewGatherer(daemon.cfg.MetricCollectionInterval, daemon.cfg.MetricMaxAge)
	daemon.gatherer.Register(daemon, daemon.link, daemon.pool, daemon.store,
		daemon.Receiver, daemon.Combiner, daemon.Flow)
	if daemon.beats != nil {
		daemon.gatherer.Register(daemon.beats)
	}

	workerCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		daemon.gatherer.Run(workerCtx)
	}()

	if !daemon.cfg.MetricHTTPEnabled {
		return
	}

	handler, err := metrics.Handler(daemon.gatherer.Registry)
	if err != nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	daemon.MetricServer = &http.Server{
		Addr:         net.JoinHostPort(daemon.cfg.MetricListenAddr, strconv.Itoa(daemon.cfg.MetricHTTPPort)),
		Handler:      mux,
		ReadTimeout:  global.HTTPReadTimeout,
		WriteTimeout: global.HTTPWriteTimeout,
		IdleTimeout:  global.HTTPIdleTimeout,
	}

	// Copy so return doesn't strip ns tags
	serverCtx := logctx.AppendCtxTag(daemon.ctx, global.NSMetric, global.NSMetricSrv)
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		logctx.LogEvent(serverCtx, global.VerbosityStandard, global.InfoLog,
			"serving metrics on %s\n", daemon.MetricServer.Addr)
		err := daemon.MetricServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logctx.LogEvent(serverCtx, global.VerbosityStandard, global.ErrorLog,
				"metric HTTP server failed: %v\n", err)
		}
	}()
	return
}

// Owner callback of the flow controller
func (daemon *Daemon) taskDone(ctx context.Context, summary repair.TaskSummary) {
	daemon.Metrics.TasksCompleted.Add(1)
	_ = daemon.beats.Report(ctx, summary)
}

// Blocking daemon waiter. Returns once the coordinator ended the session or the daemon is shut down.
func (daemon *Daemon) Run() {
	select {
	case <-daemon.controlDone:
	case <-daemon.ctx.Done():
	}
}

// Gracefully shutdown pipeline worker threads (errors are printed to program log buffer)
func (daemon *Daemon) Shutdown() {
	daemon.shutdownOnce.Do(daemon.shutdown)
}

func (daemon *Daemon) shutdown() {
	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Daemon shutdown started...\n")
	daemon.advance(StateDraining)

	// Control loop first, nothing new enters the pipeline after it
	if daemon.controlCancel != nil {
		daemon.controlCancel()
		<-daemon.controlDone
	}

	// Stop metric server
	if daemon.MetricServer != nil {
		err := daemon.MetricServer.Shutdown(daemon.ctx)
		if err != nil && err != http.ErrServerClosed {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"metric HTTP server did not shutdown gracefully: %v\n", err)
		}
	}

	// Stages drain in pipeline order
	if daemon.Receiver != nil {
		daemon.Receiver.Stop()
	}
	if daemon.Combiner != nil {
		active := daemon.Combiner.ActiveTasks()
		daemon.Combiner.Stop()
		if active > 0 {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"%d tasks were still aggregating at shutdown\n", active)
		}
	}
	if daemon.Flow != nil {
		daemon.Flow.Stop()
	}

	var closers []namedCloser
	if daemon.link != nil {
		closers = append(closers, namedCloser{"mesh", daemon.link.Close})
	}
	if daemon.store != nil {
		closers = append(closers, namedCloser{"store", daemon.store.Close})
	}
	if daemon.source != nil {
		closers = append(closers, namedCloser{"load file", daemon.source.Close})
	}
	if daemon.profile != nil {
		closers = append(closers, namedCloser{"bandwidth profile", daemon.profile.Close})
	}
	closers = append(closers, namedCloser{"beats reporter", daemon.beats.Shutdown})

	for _, closer := range closers {
		err := closer.close()
		if err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"failed closing %s: %v\n", closer.name, err)
		}
	}

	// Stop the remaining background workers
	daemon.cancel()

	// Wait for all workers to finish (with timeout)
	done := make(chan struct{})
	go func() {
		daemon.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		daemon.advance(StateStopped)
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
			"Daemon shutdown completed successfully\n")
	case <-time.After(global.NodeShutdownTimeout):
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
			"Timeout: node daemon did not shutdown within %v seconds\n",
			global.NodeShutdownTimeout.Seconds())
	}
}

type namedCloser struct {
	name  string
	close func() error
}
