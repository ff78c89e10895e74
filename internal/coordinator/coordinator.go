// Coordinator side of the control protocol. Node 0 of the mesh.
package coordinator

import (
	"context"
	"fmt"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/schedule"
	"pivotrepair/internal/transport"
	"pivotrepair/pkg/protocol"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Wraps an established link to total-1 nodes. Directives default to blockSize and pieceSize
// unless the provider sets them.
func New(namespace []string, link protocol.Link, total int, blockSize, pieceSize int64) (new *Coordinator, err error) {
	if link == nil {
		err = fmt.Errorf("coordinator requires a link")
		return
	}
	if total < 2 {
		err = fmt.Errorf("need at least one node besides the coordinator, got %d entries", total)
		return
	}

	new = &Coordinator{
		Namespace: slices.Concat(namespace, []string{global.NSCoord}),
		link:      link,
		total:     total,
		blockSize: blockSize,
		pieceSize: pieceSize,
	}
	return
}

// Connects to every node as node 0 over TCP
func Connect(ctx context.Context, namespace []string, cfg Config) (new *Coordinator, err error) {
	mesh, err := transport.ConnectTCP(ctx, namespace, global.CoordinatorID, cfg.Addresses, transport.Options{
		Secret:      cfg.Secret,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return
	}

	new, err = New(namespace, mesh, len(cfg.Addresses), cfg.BlockSize, cfg.PieceSize)
	if err != nil {
		_ = mesh.Close()
		return
	}
	new.closer = mesh
	return
}

func (coordinator *Coordinator) SetProvider(provider schedule.Provider) {
	coordinator.provider = provider
	coordinator.groups = 0
}

// Loads the next task group set from the provider. False once the plan is exhausted.
func (coordinator *Coordinator) NextGroup() (ok bool) {
	if coordinator.provider == nil {
		return
	}
	coordinator.groups, ok = coordinator.provider.NextGroupNumber()
	if !ok {
		coordinator.groups = 0
	}
	return
}

// Aggregate bandwidth of the loaded set
func (coordinator *Coordinator) Capacity() (bytesPerSec uint64) {
	if coordinator.provider == nil {
		return
	}
	bytesPerSec = coordinator.provider.Capacity()
	return
}

// Runs every group of the loaded set: directives and source ids go to all nodes concurrently,
// then one completion ack per final target is awaited before the next group starts.
// Returns the largest task count of a group.
func (coordinator *Coordinator) DoTaskGroups(ctx context.Context) (maxTasks int, err error) {
	if coordinator.provider == nil {
		err = fmt.Errorf("no schedule provider set")
		return
	}
	ctx = logctx.AppendCtxTag(ctx, global.NSCoord)

	for group := 0; group < coordinator.groups; group++ {
		taskNum := coordinator.provider.TaskNumber(group)
		maxTasks = max(maxTasks, taskNum)

		var mu sync.Mutex
		var waits []int64

		var deliveries errgroup.Group
		for nodeID := int64(1); nodeID < int64(coordinator.total); nodeID++ {
			deliveries.Go(func() (err error) {
				targets, err := coordinator.deliver(group, taskNum, nodeID)
				mu.Lock()
				waits = append(waits, targets...)
				mu.Unlock()
				return
			})
		}
		err = deliveries.Wait()
		if err != nil {
			err = fmt.Errorf("group %d: %w", group, err)
			return
		}

		err = coordinator.waitForFinish(ctx, waits, taskNum)
		if err != nil {
			err = fmt.Errorf("group %d: %w", group, err)
			return
		}
		coordinator.Metrics.Groups.Add(1)
	}
	return
}

// Sends nodeID its part of every task in the group. Returns nodeID once per task it stores.
func (coordinator *Coordinator) deliver(group, taskNum int, nodeID int64) (targets []int64, err error) {
	for task := 0; task < taskNum; task++ {
		directive := protocol.Directive{
			TaskID:    coordinator.curTaskID + int64(task),
			Size:      coordinator.blockSize,
			PieceSize: coordinator.pieceSize,
			Coef:      1,
		}
		sources := coordinator.provider.FillTask(group, task, nodeID, &directive)
		if directive.Size <= 0 {
			continue
		}

		err = protocol.SendDirective(coordinator.link, nodeID, directive)
		if err != nil {
			return
		}
		coordinator.Metrics.Directives.Add(1)
		for _, source := range sources {
			err = protocol.SendID(coordinator.link, nodeID, source)
			if err != nil {
				return
			}
		}

		if directive.TarID == nodeID {
			targets = append(targets, nodeID)
			coordinator.Metrics.Bytes.Add(uint64(directive.Size))
		}
	}
	return
}

func (coordinator *Coordinator) waitForFinish(ctx context.Context, waits []int64, taskNum int) (err error) {
	first := coordinator.curTaskID
	for _, nodeID := range waits {
		var taskID int64
		taskID, err = protocol.ReceiveID(ctx, coordinator.link, nodeID)
		if err != nil {
			return
		}
		coordinator.Metrics.Acks.Add(1)

		if taskID < first || taskID >= first+int64(taskNum) {
			coordinator.Metrics.BadAcks.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"node %d acknowledged task %d outside of the running group [%d,%d)\n",
				nodeID, taskID, first, first+int64(taskNum))
			continue
		}
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"node %d finished task %d\n", nodeID, taskID)
	}
	coordinator.curTaskID += int64(taskNum)
	return
}

// Asks every node to rewind its bandwidth profile and waits for all acks
func (coordinator *Coordinator) ReloadNodeBandwidth(ctx context.Context) (err error) {
	err = coordinator.broadcast(ctx, func(int64) protocol.Directive { return protocol.ReloadProfile() })
	return
}

// Moves every node to its next bandwidth entry. The provider's replaced node uses the replacement column.
func (coordinator *Coordinator) SetNewNodeBandwidth(ctx context.Context) (err error) {
	var replaced int64
	if coordinator.provider != nil {
		replaced = coordinator.provider.ReplacedNode()
	}
	err = coordinator.broadcast(ctx, func(nodeID int64) protocol.Directive {
		return protocol.NextBandwidth(nodeID == replaced)
	})
	return
}

func (coordinator *Coordinator) broadcast(ctx context.Context, directiveFor func(nodeID int64) protocol.Directive) (err error) {
	for nodeID := int64(1); nodeID < int64(coordinator.total); nodeID++ {
		err = protocol.SendDirective(coordinator.link, nodeID, directiveFor(nodeID))
		if err != nil {
			return
		}
	}
	for nodeID := int64(1); nodeID < int64(coordinator.total); nodeID++ {
		var ack int64
		ack, err = protocol.ReceiveID(ctx, coordinator.link, nodeID)
		if err != nil {
			return
		}
		if ack != nodeID {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"node %d acknowledged bandwidth change as node %d\n", nodeID, ack)
		}
	}
	return
}

// Sends the shutdown sentinel to every node, then releases an owned link
func (coordinator *Coordinator) Close() (err error) {
	for nodeID := int64(1); nodeID < int64(coordinator.total); nodeID++ {
		sendErr := protocol.SendDirective(coordinator.link, nodeID, protocol.Shutdown())
		if sendErr != nil && err == nil {
			err = sendErr
		}
	}
	if coordinator.closer != nil {
		closeErr := coordinator.closer.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return
}
