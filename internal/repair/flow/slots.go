package flow

func newSlotPool(workers int) (new *slotPool) {
	new = &slotPool{
		free: make([]int, 0, workers),
		pins: make(map[int64]int),
	}
	for i := 0; i < workers; i++ {
		new.free = append(new.free, i)
	}
	return
}

// Worker pinned to taskID, pinning a free one on first sight. ok is false when every worker is pinned.
func (slots *slotPool) route(taskID int64) (worker int, ok bool) {
	slots.mu.Lock()
	defer slots.mu.Unlock()

	worker, ok = slots.pins[taskID]
	if ok {
		return
	}
	if len(slots.free) == 0 {
		return
	}

	worker = slots.free[0]
	slots.free = slots.free[1:]
	slots.pins[taskID] = worker
	ok = true
	return
}

// Forgets the pin so later fragments of taskID can no longer reach the worker
func (slots *slotPool) unpin(taskID int64) {
	slots.mu.Lock()
	defer slots.mu.Unlock()
	delete(slots.pins, taskID)
}

// Returns a worker to the back of the free list
func (slots *slotPool) release(worker int) {
	slots.mu.Lock()
	defer slots.mu.Unlock()
	slots.free = append(slots.free, worker)
}

func (slots *slotPool) available() (free int) {
	slots.mu.Lock()
	defer slots.mu.Unlock()
	free = len(slots.free)
	return
}
