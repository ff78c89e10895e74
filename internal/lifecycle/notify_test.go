package lifecycle

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestNotify(t *testing.T) {
	ctx := logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)

	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	listener, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sockPath, Net: "unixgram"})
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	defer listener.Close()
	t.Setenv("NOTIFY_SOCKET", sockPath)

	tests := []struct {
		name   string
		send   func(context.Context) error
		expect string
	}{
		{"ready", NotifyReady, "READY=1"},
		{"stopping", NotifyStopping, "STOPPING=1"},
		{"status", func(ctx context.Context) error { return NotifyStatus(ctx, "running 3 tasks") }, "STATUS=running 3 tasks"},
		{"multiline status", func(ctx context.Context) error { return NotifyStatus(ctx, "draining\nnode 2") }, "STATUS=draining node 2"},
	}

	buf := make([]byte, 256)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.send(ctx)
			if err != nil {
				t.Fatalf("expected no error, got '%v'", err)
			}

			_ = listener.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, _, err := listener.ReadFromUnix(buf)
			if err != nil {
				t.Fatalf("expected datagram, got '%v'", err)
			}
			if string(buf[:n]) != tt.expect {
				t.Fatalf("expected '%s', got '%s'", tt.expect, buf[:n])
			}
		})
	}
}

func TestNotify_NoSocket(t *testing.T) {
	ctx := logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
	t.Setenv("NOTIFY_SOCKET", "")

	err := NotifyReady(ctx)
	if err != nil {
		t.Fatalf("expected no-op without socket, got '%v'", err)
	}
}

type countingDaemon struct {
	shutdowns atomic.Int32
}

func (daemon *countingDaemon) Shutdown() {
	daemon.shutdowns.Add(1)
}

func TestShutdownOnSignal(t *testing.T) {
	ctx := logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
	t.Setenv("NOTIFY_SOCKET", "")

	daemon := &countingDaemon{}
	sigChan := make(chan os.Signal, 1)
	sigChan <- syscall.SIGTERM

	shutdownOnSignal(ctx, daemon, sigChan)
	if got := daemon.shutdowns.Load(); got != 1 {
		t.Fatalf("expected 1 shutdown, got %d", got)
	}
}

func TestSignalHandler_ContextEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil))
	daemon := &countingDaemon{}

	cancel()
	SignalHandler(ctx, daemon)
	if got := daemon.shutdowns.Load(); got != 0 {
		t.Fatalf("expected no shutdown on context end, got %d", got)
	}
}
