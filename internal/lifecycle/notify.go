// Handles operations agnostic of daemon type (node/coordinator) to handle program lifecycle (signals, service manager)
package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"strings"
)

const notifySocketEnv string = "NOTIFY_SOCKET"

// Startup finished, the node accepts directives
func NotifyReady(ctx context.Context) (err error) {
	err = notify(ctx, "READY=1")
	return
}

func NotifyStopping(ctx context.Context) (err error) {
	err = notify(ctx, "STOPPING=1")
	return
}

// Free form status line shown by the service manager. Newlines would start new assignments and are flattened.
func NotifyStatus(ctx context.Context, msg string) (err error) {
	err = notify(ctx, "STATUS="+strings.ReplaceAll(msg, "\n", " "))
	return
}

// Writes one sd_notify datagram. Without NOTIFY_SOCKET this does nothing.
func notify(ctx context.Context, state string) (err error) {
	socket := os.Getenv(notifySocketEnv)
	if socket == "" {
		return
	}

	// Leading '@' names a socket in the abstract namespace
	if strings.HasPrefix(socket, "@") {
		socket = "\x00" + socket[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socket, Net: "unixgram"})
	if err != nil {
		err = fmt.Errorf("failed connecting to service manager socket: %w", err)
		return
	}
	defer conn.Close()

	_, err = conn.Write([]byte(state))
	if err != nil {
		err = fmt.Errorf("failed sending '%s' to service manager: %w", state, err)
		return
	}

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "service manager notified: %s\n", state)
	return
}
