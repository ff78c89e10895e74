package node

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/transport"
	"pivotrepair/pkg/protocol"
	"sync"
	"testing"
	"time"
)

func testCtx() (ctx context.Context) {
	ctx = logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
	return
}

type fatalRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (recorder *fatalRecorder) record(_ context.Context, err error) {
	recorder.mu.Lock()
	recorder.errs = append(recorder.errs, err)
	recorder.mu.Unlock()
}

func (recorder *fatalRecorder) count() (n int) {
	recorder.mu.Lock()
	n = len(recorder.errs)
	recorder.mu.Unlock()
	return
}

type cluster struct {
	coordinator *transport.Mesh
	daemons     []*Daemon // index 0 unused
	loads       [][]byte
	stores      []string
	fatal       *fatalRecorder
}

func writeFile(t *testing.T, path string, data []byte) {
	err := os.WriteFile(path, data, 0600)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
}

// Starts nodes 1..n-1 over an in-memory mesh, node 0 is driven by the test
func newCluster(t *testing.T, n int, loadSize int, profile string) (c *cluster) {
	meshes, err := transport.NewMemoryMesh([]string{global.NSTest}, n, transport.Options{})
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}

	dir := t.TempDir()
	profilePath := ""
	if profile != "" {
		profilePath = filepath.Join(dir, "bandwidth.txt")
		writeFile(t, profilePath, []byte(profile))
	}

	addrs := make([]string, n)
	c = &cluster{
		coordinator: meshes[0],
		daemons:     make([]*Daemon, n),
		loads:       make([][]byte, n),
		stores:      make([]string, n),
		fatal:       &fatalRecorder{},
	}
	for id := 1; id < n; id++ {
		c.loads[id] = make([]byte, loadSize)
		_, _ = rand.Read(c.loads[id])
		loadPath := filepath.Join(dir, "load-"+string(rune('0'+id)))
		writeFile(t, loadPath, c.loads[id])
		c.stores[id] = filepath.Join(dir, "store-"+string(rune('0'+id)))

		daemon := NewDaemon(Config{
			NodeID:         int64(id),
			Addresses:      addrs,
			LoadPath:       loadPath,
			StorePath:      c.stores[id],
			BandwidthPath:  profilePath,
			BlockNum:       4,
			BlockSize:      4096,
			ReceiveWorkers: 2,
			CombineWorkers: 2,
			FlowWorkers:    2,
			QueueSize:      16,
		})
		mesh := meshes[id]
		daemon.connect = func(context.Context) (*transport.Mesh, error) { return mesh, nil }
		daemon.fatal = c.fatal.record

		err = daemon.Start(testCtx())
		if err != nil {
			t.Fatalf("expected node %d to start, got '%v'", id, err)
		}
		if daemon.State() != StateRunning {
			t.Fatalf("expected node %d running, got %s", id, daemon.State())
		}
		c.daemons[id] = daemon
	}

	t.Cleanup(func() {
		for _, daemon := range c.daemons {
			if daemon != nil {
				daemon.Shutdown()
			}
		}
		_ = c.coordinator.Close()
	})
	return
}

func (c *cluster) send(t *testing.T, nodeID int64, directive protocol.Directive, sources ...int64) {
	err := protocol.SendDirective(c.coordinator, nodeID, directive)
	if err != nil {
		t.Fatalf("expected directive delivery to node %d, got '%v'", nodeID, err)
	}
	for _, source := range sources {
		err = protocol.SendID(c.coordinator, nodeID, source)
		if err != nil {
			t.Fatalf("expected source id delivery to node %d, got '%v'", nodeID, err)
		}
	}
}

func (c *cluster) receive(t *testing.T, nodeID int64) (id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := protocol.ReceiveID(ctx, c.coordinator, nodeID)
	if err != nil {
		t.Fatalf("expected ack from node %d, got '%v'", nodeID, err)
	}
	return
}

func (c *cluster) stop(t *testing.T, nodeID int64) {
	c.send(t, nodeID, protocol.Shutdown())

	daemon := c.daemons[nodeID]
	done := make(chan struct{})
	go func() {
		daemon.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("expected node %d control loop to end after the sentinel", nodeID)
	}
	if daemon.State() != StateDraining {
		t.Fatalf("expected node %d draining, got %s", nodeID, daemon.State())
	}
	daemon.Shutdown()
	if daemon.State() != StateStopped {
		t.Fatalf("expected node %d stopped, got %s", nodeID, daemon.State())
	}
}

func xor(a, b []byte) (out []byte) {
	out = make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return
}

func TestDaemon_TwoSourceRepair(t *testing.T) {
	c := newCluster(t, 3, 1024, "")

	// Node 1 relays its block to node 2, node 2 combines with its own and stores
	c.send(t, 1, protocol.Directive{TaskID: 1, SrcNum: 0, TarID: 2, Offset: 0, Size: 1024, PieceSize: 1024, Coef: 1, Bandwidth: 1000000})
	c.send(t, 2, protocol.Directive{TaskID: 1, SrcNum: 1, TarID: 2, Offset: 0, Size: 1024, PieceSize: 1024, Coef: 1, Bandwidth: 1000000}, 1)

	if ack := c.receive(t, 2); ack != 1 {
		t.Fatalf("expected completion ack for task 1, got %d", ack)
	}

	c.stop(t, 1)
	c.stop(t, 2)

	written, err := os.ReadFile(c.stores[2])
	if err != nil {
		t.Fatalf("expected store file on node 2, got '%v'", err)
	}
	want := xor(c.loads[1], c.loads[2])
	if !bytes.Equal(written, want) {
		t.Fatalf("expected stored block to be the XOR of both sources (%d bytes), got %d bytes", len(want), len(written))
	}
	if got := c.daemons[2].store.Metrics.Writes.Load(); got != 1 {
		t.Fatalf("expected exactly one write, got %d", got)
	}
	if _, err := os.Stat(c.stores[1]); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected relay node to never open its store, got '%v'", err)
	}
	if got := c.daemons[1].Metrics.TasksCompleted.Load(); got != 1 {
		t.Fatalf("expected relay node to finish 1 task, got %d", got)
	}
}

func TestDaemon_PipelinedChain(t *testing.T) {
	c := newCluster(t, 4, 3000, "")

	// 1 -> 2 -> 3, pieces of 1024 with a short tail
	c.send(t, 1, protocol.Directive{TaskID: 9, SrcNum: 0, TarID: 2, Offset: 0, Size: 3000, PieceSize: 1024, Coef: 1})
	c.send(t, 2, protocol.Directive{TaskID: 9, SrcNum: 1, TarID: 3, Offset: 0, Size: 3000, PieceSize: 1024, Coef: 1}, 1)
	c.send(t, 3, protocol.Directive{TaskID: 9, SrcNum: 1, TarID: 3, Offset: 0, Size: 3000, PieceSize: 1024, Coef: 1}, 2)

	if ack := c.receive(t, 3); ack != 9 {
		t.Fatalf("expected completion ack for task 9, got %d", ack)
	}
	for id := int64(1); id <= 3; id++ {
		c.stop(t, id)
	}

	written, err := os.ReadFile(c.stores[3])
	if err != nil {
		t.Fatalf("expected store file on node 3, got '%v'", err)
	}
	want := xor(xor(c.loads[1], c.loads[2]), c.loads[3])
	if !bytes.Equal(written, want) {
		t.Fatalf("expected stored range to be the XOR of three sources")
	}
	if got := c.daemons[3].store.Metrics.Writes.Load(); got != 3 {
		t.Fatalf("expected one write per piece, got %d", got)
	}
}

func TestDaemon_BandwidthControl(t *testing.T) {
	c := newCluster(t, 3, 16, "# replacement node1 node2\n4MiB 2MiB 1MiB\n\n0 3MiB 5MiB\n")
	daemon := c.daemons[1]

	tests := []struct {
		name      string
		directive protocol.Directive
		wantRate  uint64
	}{
		{"first entry", protocol.NextBandwidth(false), 2 << 20},
		{"second entry as replacement", protocol.NextBandwidth(true), 0},
		{"rewind", protocol.ReloadProfile(), 0},
		{"first entry again as replacement", protocol.NextBandwidth(true), 4 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.send(t, 1, tt.directive)
			if ack := c.receive(t, 1); ack != 1 {
				t.Fatalf("expected ack with node id 1, got %d", ack)
			}
			if got := daemon.shaper.Rate(); got != tt.wantRate {
				t.Fatalf("expected rate %d, got %d", tt.wantRate, got)
			}
		})
	}

	// Profile exhausted after the second entry
	c.send(t, 1, protocol.NextBandwidth(false))
	if got := c.receive(t, 1); got != 1 {
		t.Fatalf("expected ack with node id 1, got %d", got)
	}
	c.send(t, 1, protocol.NextBandwidth(false))
	deadline := time.Now().Add(5 * time.Second)
	for c.fatal.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.fatal.count() != 1 {
		t.Fatalf("expected exhausted profile to be fatal, got %d fatal errors", c.fatal.count())
	}
}

func TestDaemon_AnnounceTimeout(t *testing.T) {
	c := newCluster(t, 3, 64, "")
	daemon := c.daemons[2]
	daemon.cfg.AnnounceTimeout = 50 * time.Millisecond

	// Two sources declared, none announced
	c.send(t, 2, protocol.Directive{TaskID: 4, SrcNum: 2, TarID: 2, Offset: 0, Size: 64, PieceSize: 64})

	done := make(chan struct{})
	go func() {
		daemon.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected control loop to give up after the announce timeout")
	}
	if daemon.State() != StateDraining {
		t.Fatalf("expected draining, got %s", daemon.State())
	}
	if got := daemon.Metrics.ControlErrors.Load(); got != 1 {
		t.Fatalf("expected 1 control error, got %d", got)
	}
}

func TestDaemon_StartFailure(t *testing.T) {
	daemon := NewDaemon(Config{
		NodeID:    1,
		Addresses: []string{"", ""},
		LoadPath:  filepath.Join(t.TempDir(), "missing"),
		StorePath: filepath.Join(t.TempDir(), "store"),
	})
	daemon.connect = func(context.Context) (*transport.Mesh, error) {
		t.Fatalf("expected no connect after a failed open")
		return nil, nil
	}

	err := daemon.Start(testCtx())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if daemon.State() != StateStopped {
		t.Fatalf("expected stopped after failed start, got %s", daemon.State())
	}
	daemon.Run()
}
