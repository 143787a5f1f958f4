package localcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/types"
)

const (
	documentSlot    = "document.json"
	connectionsSlot = "connections.json"
)

// Cache holds the authoritative in-memory board state used for rendering,
// plus a durable fallback copy on disk so a restart renders instantly
// without waiting on the network. It never touches the network itself.
type Cache struct {
	dir    string
	logger zerolog.Logger

	mu    sync.RWMutex
	doc   types.Document
	conns []types.Edge
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, logger zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// Load populates the in-memory state from the durable slots. A missing or
// malformed slot falls back to the built-in default document rather than
// erroring; local corruption is never surfaced to the user.
func (c *Cache) Load() (types.Document, []types.Edge) {
	doc, ok := c.loadDocument()
	if !ok {
		doc = types.DefaultDocument()
	}

	var conns []types.Edge
	if data, err := os.ReadFile(filepath.Join(c.dir, connectionsSlot)); err == nil {
		if err := json.Unmarshal(data, &conns); err != nil {
			c.logger.Warn().Err(err).Msg("discarding malformed connections slot")
			conns = nil
		}
	}
	if conns == nil && !ok {
		conns = types.DefaultConnections(doc)
	}

	c.mu.Lock()
	c.doc = doc
	c.conns = conns
	c.mu.Unlock()

	return doc.Clone(), types.CloneEdges(conns)
}

func (c *Cache) loadDocument() (types.Document, bool) {
	data, err := os.ReadFile(filepath.Join(c.dir, documentSlot))
	if err != nil {
		return types.Document{}, false
	}
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed document slot")
		return types.Document{}, false
	}
	// A well-formed slot still needs the document shape: a board without a
	// component list is not renderable.
	if doc.Components == nil {
		return types.Document{}, false
	}
	return doc, true
}

// Document returns a copy of the in-memory document.
func (c *Cache) Document() types.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.Clone()
}

// Connections returns a copy of the in-memory connections.
func (c *Cache) Connections() []types.Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.CloneEdges(c.conns)
}

// SetDocument replaces the in-memory document and persists it immediately.
// Local persistence is cheap, so unlike remote saves it is not debounced;
// every change lands on disk in case the process dies.
func (c *Cache) SetDocument(doc types.Document) {
	c.mu.Lock()
	c.doc = doc.Clone()
	c.mu.Unlock()
	c.persistSlot(documentSlot, doc)
}

// SetConnections replaces the in-memory connections and persists them.
func (c *Cache) SetConnections(conns []types.Edge) {
	c.mu.Lock()
	c.conns = types.CloneEdges(conns)
	c.mu.Unlock()
	c.persistSlot(connectionsSlot, conns)
}

// Replace swaps in a full board state, persisting both slots.
func (c *Cache) Replace(doc types.Document, conns []types.Edge) {
	c.SetDocument(doc)
	c.SetConnections(conns)
}

func (c *Cache) persistSlot(slot string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Str("slot", slot).Msg("failed to encode cache slot")
		return
	}

	path := filepath.Join(c.dir, slot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Error().Err(err).Str("slot", slot).Msg("failed to write cache slot")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		c.logger.Error().Err(err).Str("slot", slot).Msg("failed to swap cache slot")
	}
}
