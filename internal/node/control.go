package node

import (
	"context"
	"errors"
	"fmt"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/pkg/protocol"
)

// Pulls directives from the coordinator until the shutdown sentinel arrives, the link fails or ctx ends
func (daemon *Daemon) controlLoop(ctx context.Context) {
	defer daemon.advance(StateDraining)

	for {
		directive, err := protocol.ReceiveDirective(ctx, daemon.link, global.CoordinatorID)
		if err != nil {
			if ctx.Err() == nil {
				daemon.Metrics.ControlErrors.Add(1)
				logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
					"lost coordinator: %v\n", err)
			}
			return
		}
		daemon.Metrics.Directives.Add(1)

		switch directive.Kind() {
		case protocol.KindShutdown:
			logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
				"coordinator ended the session\n")
			return
		case protocol.KindBandwidth:
			err = daemon.handleBandwidth(ctx, directive)
		default:
			err = daemon.handleTask(ctx, directive)
		}
		if err != nil {
			daemon.Metrics.ControlErrors.Add(1)
			if ctx.Err() == nil {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "%v\n", err)
			}
			return
		}
	}
}

// Queues the local contribution, then one stream per announced source
func (daemon *Daemon) handleTask(ctx context.Context, directive protocol.Directive) (err error) {
	daemon.Metrics.Tasks.Add(1)

	// Own local contribution counts as a source
	directive.SrcNum++
	logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
		"task %d: %d sources, target %d, offset %d, size %d\n",
		directive.TaskID, directive.SrcNum, directive.TarID, directive.Offset, directive.Size)

	err = daemon.Receiver.Inject(ctx, directive, daemon.cfg.NodeID)
	if err != nil {
		err = fmt.Errorf("task %d: failed queueing local contribution: %w", directive.TaskID, err)
		return
	}

	for i := int64(1); i < directive.SrcNum; i++ {
		var peerID int64
		peerID, err = daemon.receivePeerID(ctx)
		if err != nil {
			err = fmt.Errorf("task %d: waiting for source %d of %d: %w", directive.TaskID, i, directive.SrcNum-1, err)
			return
		}
		daemon.Metrics.PeerIDs.Add(1)

		err = daemon.Receiver.Inject(ctx, directive, peerID)
		if err != nil {
			err = fmt.Errorf("task %d: failed starting stream from node %d: %w", directive.TaskID, peerID, err)
			return
		}
	}
	return
}

// Peer ids follow their task directive closely. A coordinator that stays silent past the
// announce timeout leaves the link framing unknown, so the caller stops reading from it.
func (daemon *Daemon) receivePeerID(ctx context.Context) (peerID int64, err error) {
	recvCtx, cancel := context.WithTimeout(ctx, daemon.cfg.AnnounceTimeout)
	defer cancel()

	peerID, err = protocol.ReceiveID(recvCtx, daemon.link, global.CoordinatorID)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("no source id within %v: %w", daemon.cfg.AnnounceTimeout, err)
		return
	}
	if err != nil {
		return
	}
	if peerID <= global.CoordinatorID || peerID == daemon.cfg.NodeID || peerID >= int64(len(daemon.cfg.Addresses)) {
		err = fmt.Errorf("coordinator announced invalid source node %d", peerID)
	}
	return
}

// Reopens or advances the bandwidth profile, then acknowledges with this node's id
func (daemon *Daemon) handleBandwidth(ctx context.Context, directive protocol.Directive) (err error) {
	daemon.Metrics.BandwidthCmds.Add(1)

	if directive.IsProfileReload() {
		err = daemon.profile.Open(daemon.cfg.BandwidthPath)
		if err != nil {
			daemon.fatal(ctx, fmt.Errorf("failed reopening bandwidth profile: %w", err))
			return
		}
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "bandwidth profile rewound\n")
	} else {
		err = daemon.profile.LoadNext()
		if err == nil {
			err = daemon.shaper.Apply(ctx, daemon.profile, daemon.cfg.NodeID, directive.IsReplacement())
		}
		if err != nil {
			daemon.fatal(ctx, fmt.Errorf("failed loading bandwidth: %w", err))
			return
		}
	}

	err = protocol.SendID(daemon.link, global.CoordinatorID, daemon.cfg.NodeID)
	return
}
