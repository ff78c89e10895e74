package node

func (state State) String() (name string) {
	switch state {
	case StateIdle:
		name = "idle"
	case StateConnected:
		name = "connected"
	case StateRunning:
		name = "running"
	case StateDraining:
		name = "draining"
	case StateStopped:
		name = "stopped"
	default:
		name = "unknown"
	}
	return
}

func (daemon *Daemon) State() (state State) {
	state = State(daemon.state.Load())
	return
}

// Moves the daemon forward to next. States never go back, so a late or repeated
// transition is reported as not applied.
func (daemon *Daemon) advance(next State) (applied bool) {
	for {
		current := daemon.state.Load()
		if State(current) >= next {
			return
		}
		if daemon.state.CompareAndSwap(current, int32(next)) {
			applied = true
			return
		}
	}
}
