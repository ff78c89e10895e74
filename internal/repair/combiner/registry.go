package combiner

import "time"

// Completed ids remembered for re-appearance warnings
const recentTaskMemory int = 4096

func newTaskRegistry() (new *taskRegistry) {
	new = &taskRegistry{
		tasks:  make(map[int64]*taskState),
		recent: make(map[int64]struct{}),
		ring:   make([]int64, 0, recentTaskMemory),
	}
	return
}

// Returns the state for taskID, creating it when absent.
// reappeared reports a fresh state for an id that already completed.
func (registry *taskRegistry) acquire(taskID int64) (state *taskState, reappeared bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	state, ok := registry.tasks[taskID]
	if ok {
		return
	}

	state = &taskState{
		started: time.Now(),
		pieces:  pieceRegistry{pieces: make(map[int64]*piece)},
	}
	registry.tasks[taskID] = state
	_, reappeared = registry.recent[taskID]
	return
}

// Drops a completed state. A newer state registered under the same id is left alone.
func (registry *taskRegistry) release(taskID int64, state *taskState) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.tasks[taskID] == state {
		delete(registry.tasks, taskID)
	}

	if _, ok := registry.recent[taskID]; ok {
		return
	}
	if len(registry.ring) < recentTaskMemory {
		registry.ring = append(registry.ring, taskID)
	} else {
		delete(registry.recent, registry.ring[registry.ringNext])
		registry.ring[registry.ringNext] = taskID
		registry.ringNext = (registry.ringNext + 1) % recentTaskMemory
	}
	registry.recent[taskID] = struct{}{}
}

func (registry *taskRegistry) len() (active int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	active = len(registry.tasks)
	return
}

// Applies one ledger entry. complete is true for exactly one caller per state.
func (state *taskState) apply(entry ledgerEntry) (complete bool, conflict bool) {
	state.mu.Lock()
	defer state.mu.Unlock()

	switch entry.kind {
	case totalAnnouncement:
		total := entry.bytes
		if total < 0 {
			total = -total
		}
		if state.announced {
			conflict = total != state.total
			break
		}
		state.total = total
		state.announced = true
	case credit:
		state.sum += entry.bytes
	}

	if !state.done && state.total > 0 && state.sum == state.total {
		state.done = true
		complete = true
	}
	return
}

// Returns the accumulator for offset, creating an empty one when absent
func (registry *pieceRegistry) acquire(offset int64) (p *piece) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	p, ok := registry.pieces[offset]
	if !ok {
		p = &piece{}
		registry.pieces[offset] = p
	}
	return
}

func (registry *pieceRegistry) release(offset int64, p *piece) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.pieces[offset] == p {
		delete(registry.pieces, offset)
	}
}

func (registry *pieceRegistry) len() (open int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	open = len(registry.pieces)
	return
}
