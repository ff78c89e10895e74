package receiver

import (
	"bytes"
	"context"
	"pivotrepair/internal/bufpool"
	"pivotrepair/internal/coding"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/repair"
	"pivotrepair/internal/transport"
	"pivotrepair/pkg/protocol"
	"sort"
	"sync"
	"testing"
	"time"
)

type captured struct {
	frag repair.Fragment
	data []byte
}

type captureSink struct {
	mu   sync.Mutex
	got  []captured
	pool *bufpool.Pool
	seen chan struct{}
}

func (sink *captureSink) Submit(_ context.Context, frag repair.Fragment) (err error) {
	entry := captured{frag: frag}
	if frag.Buf != nil {
		entry.data = bytes.Clone(frag.Buf.Bytes())
		sink.pool.Recycle(frag.Buf)
	}
	sink.mu.Lock()
	sink.got = append(sink.got, entry)
	sink.mu.Unlock()
	if sink.seen != nil {
		sink.seen <- struct{}{}
	}
	return
}

func (sink *captureSink) sorted() (entries []captured) {
	sink.mu.Lock()
	entries = append(entries, sink.got...)
	sink.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].frag.Buf == nil {
			return true
		}
		if entries[j].frag.Buf == nil {
			return false
		}
		return entries[i].frag.Offset < entries[j].frag.Offset
	})
	return
}

func testCtx() (ctx context.Context) {
	ctx = logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
	return
}

func setup(t *testing.T, source []byte, link protocol.Receiver) (receiver *Receiver, sink *captureSink) {
	pool, err := bufpool.New([]string{global.NSTest}, 256, 4)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	sink = &captureSink{pool: pool}

	if link == nil {
		var meshes []*transport.Mesh
		meshes, err = transport.NewMemoryMesh([]string{global.NSTest}, 2, transport.Options{})
		if err != nil {
			t.Fatalf("expected no error, got '%v'", err)
		}
		t.Cleanup(func() {
			for _, mesh := range meshes {
				_ = mesh.Close()
			}
		})
		link = meshes[1]
	}

	receiver, err = New([]string{global.NSTest}, Config{
		Self:      1,
		Source:    bytes.NewReader(source),
		Link:      link,
		Pool:      pool,
		Next:      sink,
		Workers:   2,
		QueueSize: 8,
	})
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	return
}

func TestReceiver_LocalJob(t *testing.T) {
	source := make([]byte, 1000)
	for i := range source {
		source[i] = byte(i)
	}

	tests := []struct {
		name       string
		directive  protocol.Directive
		wantPieces []int64 // sizes
		wantDelay  int64
	}{
		{
			name:       "even split with pacing",
			directive:  protocol.Directive{TaskID: 1, SrcNum: 3, TarID: 4, Offset: 0, Size: 512, PieceSize: 256, Coef: 1, Bandwidth: 1000000},
			wantPieces: []int64{256, 256},
			wantDelay:  256,
		},
		{
			name:       "short tail no pacing",
			directive:  protocol.Directive{TaskID: 2, SrcNum: 1, TarID: 1, Offset: 100, Size: 300, PieceSize: 256, Coef: 1},
			wantPieces: []int64{256, 44},
			wantDelay:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testCtx()
			receiver, sink := setup(t, source, nil)
			receiver.Start(ctx)
			if err := receiver.Inject(ctx, tt.directive, 1); err != nil {
				t.Fatalf("expected no error, got '%v'", err)
			}
			receiver.Stop()

			entries := sink.sorted()
			if len(entries) != len(tt.wantPieces)+1 {
				t.Fatalf("expected %d fragments, got %d", len(tt.wantPieces)+1, len(entries))
			}

			announce := entries[0].frag
			if !announce.IsAnnouncement() || announce.Size != tt.directive.Size || announce.TarID != tt.directive.TarID {
				t.Fatalf("expected announcement of %d bytes to %d, got %+v", tt.directive.Size, tt.directive.TarID, announce)
			}

			offset := tt.directive.Offset
			for i, size := range tt.wantPieces {
				entry := entries[i+1]
				if entry.frag.Offset != offset || entry.frag.Size != size {
					t.Fatalf("expected piece (%d, %d), got (%d, %d)", offset, size, entry.frag.Offset, entry.frag.Size)
				}
				if entry.frag.SrcNum != tt.directive.SrcNum || entry.frag.TarID != tt.directive.TarID {
					t.Fatalf("expected source count %d target %d, got %d %d", tt.directive.SrcNum, tt.directive.TarID, entry.frag.SrcNum, entry.frag.TarID)
				}
				if entry.frag.Delay != tt.wantDelay {
					t.Fatalf("expected delay %d, got %d", tt.wantDelay, entry.frag.Delay)
				}
				if !bytes.Equal(entry.data, source[offset:offset+size]) {
					t.Fatalf("expected piece content to match source at offset %d", offset)
				}
				offset += size
			}
		})
	}
}

func TestReceiver_ScaledAndZeroFilled(t *testing.T) {
	ctx := testCtx()
	source := []byte{1, 2, 3, 4}
	receiver, sink := setup(t, source, nil)
	receiver.Start(ctx)

	directive := protocol.Directive{TaskID: 3, SrcNum: 1, TarID: 1, Offset: 0, Size: 8, PieceSize: 8, Coef: 2}
	_ = receiver.Inject(ctx, directive, 1)
	receiver.Stop()

	entries := sink.sorted()
	if len(entries) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(entries))
	}

	want := make([]byte, 8)
	if err := coding.Scale(2, want, []byte{1, 2, 3, 4, 0, 0, 0, 0}); err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	if !bytes.Equal(entries[1].data, want) {
		t.Fatalf("expected scaled zero filled piece '%v', got '%v'", want, entries[1].data)
	}
}

func TestReceiver_InvalidDirective(t *testing.T) {
	ctx := testCtx()
	receiver, sink := setup(t, []byte("data"), nil)
	receiver.Start(ctx)
	_ = receiver.Inject(ctx, protocol.Directive{TaskID: 1, Size: 4, PieceSize: 0}, 1)
	receiver.Stop()

	if len(sink.sorted()) != 0 {
		t.Fatalf("expected invalid directive to produce nothing")
	}
}

func TestNew_RequiresLink(t *testing.T) {
	pool, err := bufpool.New([]string{global.NSTest}, 256, 4)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	_, err = New([]string{global.NSTest}, Config{
		Self:      1,
		Source:    bytes.NewReader([]byte("data")),
		Pool:      pool,
		Next:      &captureSink{pool: pool},
		Workers:   1,
		QueueSize: 1,
	})
	if err == nil {
		t.Fatalf("expected error for missing link, got nil")
	}
}

func TestReceiver_PeerStream(t *testing.T) {
	meshes, err := transport.NewMemoryMesh([]string{global.NSTest}, 3, transport.Options{})
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	defer func() {
		for _, mesh := range meshes {
			_ = mesh.Close()
		}
	}()

	ctx := testCtx()
	receiver, sink := setup(t, nil, meshes[1])
	sink.seen = make(chan struct{}, 4)
	receiver.Start(ctx)

	directive := protocol.Directive{TaskID: 5, Size: 16, PieceSize: 16}
	// Repeated injection for the same peer keeps one reader
	for i := 0; i < 3; i++ {
		if err := receiver.Inject(ctx, directive, 2); err != nil {
			t.Fatalf("expected no error, got '%v'", err)
		}
	}
	if got := receiver.Metrics.Streams.Load(); got != 1 {
		t.Fatalf("expected one stream reader, got %d", got)
	}

	payload := []byte("sixteen byte msg")
	header := protocol.FragmentHeader{TaskID: 5, Offset: 32, Size: int64(len(payload))}
	if err := protocol.SendFragment(meshes[2], 1, header, payload); err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}

	select {
	case <-sink.seen:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected peer fragment to reach the sink")
	}
	receiver.Stop()

	entries := sink.sorted()
	if len(entries) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(entries))
	}
	frag := entries[0].frag
	if frag.TaskID != 5 || frag.Offset != 32 || frag.SrcNum != 0 || frag.TarID != 0 || frag.Delay != 0 {
		t.Fatalf("expected bare peer fragment for task 5 offset 32, got %+v", frag)
	}
	if !bytes.Equal(entries[0].data, payload) {
		t.Fatalf("expected '%s', got '%s'", payload, entries[0].data)
	}
}
