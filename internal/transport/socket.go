package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Listener that can rebind while old connections linger in TIME_WAIT
func listenTCP(ctx context.Context, addr string) (listener net.Listener, err error) {
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var err error
			c.Control(func(fd uintptr) {
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			return err
		},
	}

	listener, err = cfg.Listen(ctx, "tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to listen on %s: %w", addr, err)
		return
	}
	return
}

// Dialer with Nagle disabled. Relay frames are small header sends followed by the payload.
func newDialer(timeout time.Duration) (dialer *net.Dialer) {
	dialer = &net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, c syscall.RawConn) error {
			var err error
			c.Control(func(fd uintptr) {
				err = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			})
			return err
		},
	}
	return
}

// Applies TCP_NODELAY to an accepted connection
func setNoDelay(conn net.Conn) (err error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return
	}
	controlErr := raw.Control(func(fd uintptr) {
		err = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if controlErr != nil {
		err = controlErr
	}
	return
}
