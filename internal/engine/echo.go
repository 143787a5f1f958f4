package engine

import (
	"sync"
	"time"

	"github.com/example/archboard/internal/types"
)

// echoMarker remembers the updatedAt value this client most recently wrote,
// so the write can be recognized and discarded when the push feed reflects
// it back. The marker is recorded before the write is issued, closing the
// race against a feed notification arriving mid-write.
type echoMarker struct {
	mu   sync.Mutex
	last types.Timestamp
}

func (m *echoMarker) Record(t types.Timestamp) {
	m.mu.Lock()
	m.last = t
	m.mu.Unlock()
}

// IsEcho reports whether t matches the recorded marker within the tolerance
// that absorbs clock and serialization skew.
func (m *echoMarker) IsEcho(t types.Timestamp, tolerance time.Duration) bool {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()

	if last.IsZero() || t.IsZero() {
		return false
	}
	diff := t.Sub(last.Time)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
