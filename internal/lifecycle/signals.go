package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"syscall"
)

type DaemonLike interface {
	Shutdown()
}

// Waits for an exit request (or ctx end) and shuts the daemon down gracefully.
// Returns after the daemon shutdown completed.
func SignalHandler(ctx context.Context, daemon DaemonLike) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	shutdownOnSignal(ctx, daemon, sigChan)
}

func shutdownOnSignal(ctx context.Context, daemon DaemonLike, sigChan <-chan os.Signal) {
	select {
	case sig := <-sigChan:
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Received signal: %v\n", sig)
	case <-ctx.Done():
		return
	}

	err := NotifyStopping(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify stopping failed: %v\n", err)
	}

	daemon.Shutdown()

	logger := logctx.GetLogger(ctx)
	if logger != nil {
		logger.Wake()
	}
}
