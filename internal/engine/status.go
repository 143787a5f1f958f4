package engine

// Status is the synchronization state surfaced to the UI. Remote-store
// errors never escape the engine as exceptions; they collapse into these
// signals instead.
type Status string

const (
	// StatusSynced means the last save round-trip completed.
	StatusSynced Status = "synced"
	// StatusSaving means at least one save is in flight.
	StatusSaving Status = "saving"
	// StatusOffline means save retries were exhausted; the local optimistic
	// copy is the source of truth until a save succeeds again.
	StatusOffline Status = "offline"
)

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	if e.status == s {
		e.mu.Unlock()
		return
	}
	e.status = s
	subs := make([]func(Status), len(e.statusSubs))
	copy(subs, e.statusSubs)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Status returns the current synchronization status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// OnStatus registers a callback for status transitions.
func (e *Engine) OnStatus(fn func(Status)) {
	e.mu.Lock()
	e.statusSubs = append(e.statusSubs, fn)
	e.mu.Unlock()
}
