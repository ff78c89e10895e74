package transport

import (
	"context"
	"fmt"
	"net"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Connects node self to every other address. Lower ids are dialed, higher ids are accepted.
func ConnectTCP(ctx context.Context, namespace []string, self int64, addrs []string, opts Options) (new *Mesh, err error) {
	total := int64(len(addrs))
	if self < 0 || self >= total {
		err = fmt.Errorf("node id %d outside address list of %d entries", self, total)
		return
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = global.DefaultDialTimeout
	}

	mesh := newMesh(namespace, self)
	ctx = logctx.AppendCtxTag(ctx, global.NSTransport)

	if self < total-1 {
		mesh.listener, err = listenTCP(ctx, addrs[self])
		if err != nil {
			return
		}
	}

	var mu sync.Mutex
	register := func(p *peer) (err error) {
		mu.Lock()
		defer mu.Unlock()
		if _, exists := mesh.peers[p.id]; exists {
			err = fmt.Errorf("node %d connected twice", p.id)
			return
		}
		mesh.peers[p.id] = p
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for id := int64(0); id < self; id++ {
		group.Go(func() (err error) {
			p, err := dialPeer(groupCtx, id, addrs[id], self, opts)
			if err != nil {
				return
			}
			err = register(p)
			if err != nil {
				_ = p.conn.Close()
			}
			return
		})
	}

	listener := mesh.listener
	if listener != nil {
		// Unblock Accept when a dial fails
		stop := context.AfterFunc(groupCtx, func() {
			_ = listener.Close()
		})
		defer stop()

		group.Go(func() (err error) {
			for accepted := int64(0); accepted < total-1-self; {
				var conn net.Conn
				conn, err = listener.Accept()
				if err != nil {
					err = fmt.Errorf("failed accepting peer: %w", err)
					return
				}
				_ = setNoDelay(conn)

				var p *peer
				p, err = handshake(conn, self, false, opts.Secret)
				if err != nil {
					_ = conn.Close()
					logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
						"rejected connection from %s: %v\n", conn.RemoteAddr(), err)
					err = nil
					continue
				}
				if p.id <= self || p.id >= total {
					_ = conn.Close()
					logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
						"rejected connection from %s claiming node id %d\n", conn.RemoteAddr(), p.id)
					continue
				}
				err = register(p)
				if err != nil {
					_ = conn.Close()
					return
				}
				accepted++
				logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
					"accepted node %d from %s\n", p.id, conn.RemoteAddr())
			}
			return
		})
	}

	err = group.Wait()
	if err != nil {
		_ = mesh.Close()
		return
	}

	// Listener not needed once the mesh is complete
	if listener != nil {
		_ = listener.Close()
		mesh.listener = nil
	}

	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"node %d connected to %d peers (sealed: %t)\n", self, len(mesh.peers), len(opts.Secret) > 0)
	new = mesh
	return
}

// Dials one lower id, retrying with exponential backoff until the dial timeout
func dialPeer(ctx context.Context, id int64, addr string, self int64, opts Options) (p *peer, err error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = opts.DialTimeout

	dialer := newDialer(opts.DialTimeout)

	operation := func() (err error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return
		}

		p, err = handshake(conn, self, true, opts.Secret)
		if err != nil {
			_ = conn.Close()
			return
		}
		if p.id != id {
			_ = conn.Close()
			err = backoff.Permanent(fmt.Errorf("address %s answered as node %d, expected %d", addr, p.id, id))
			return
		}
		return
	}

	notify := func(err error, wait time.Duration) {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"dial to node %d at %s failed (retry in %s): %v\n", id, addr, wait.Round(time.Millisecond), err)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		p = nil
		err = fmt.Errorf("failed connecting to node %d at %s: %w", id, addr, err)
		return
	}
	return
}
