package engine

import "sync"

// dirtyTracker records which nodes currently hold an unsaved local edit.
// While a node id is tracked here, no incoming remote document may overwrite
// that node's in-memory copy; every other node is always safe to adopt.
// The set is process-local and empties on restart, which is fine: a restart
// means there is no in-flight edit to protect.
type dirtyTracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newDirtyTracker() *dirtyTracker {
	return &dirtyTracker{ids: make(map[string]struct{})}
}

func (t *dirtyTracker) Mark(nodeID string) {
	t.mu.Lock()
	t.ids[nodeID] = struct{}{}
	t.mu.Unlock()
}

func (t *dirtyTracker) Clear(nodeID string) {
	t.mu.Lock()
	delete(t.ids, nodeID)
	t.mu.Unlock()
}

func (t *dirtyTracker) IsDirty(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[nodeID]
	return ok
}

// Set returns a copy of the dirty node ids.
func (t *dirtyTracker) Set() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]struct{}, len(t.ids))
	for id := range t.ids {
		out[id] = struct{}{}
	}
	return out
}
