package localcache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/types"
)

func newCache(t *testing.T, dir string) *Cache {
	t.Helper()
	c, err := New(dir, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func TestLoadSeedsDefaultsOnFirstRun(t *testing.T) {
	c := newCache(t, t.TempDir())
	doc, conns := c.Load()

	if len(doc.Components) == 0 {
		t.Fatal("first run produced an empty board")
	}
	if len(conns) != len(doc.Components)-1 {
		t.Fatalf("seed connections mismatch: %d edges for %d nodes", len(conns), len(doc.Components))
	}
	for _, e := range conns {
		if _, ok := doc.Node(e.From); !ok {
			t.Fatalf("seed edge references unknown node %q", e.From)
		}
		if _, ok := doc.Node(e.To); !ok {
			t.Fatalf("seed edge references unknown node %q", e.To)
		}
	}
}

func TestLoadFallsBackOnMalformedSlots(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "document.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write slot: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "connections.json"), []byte("[[["), 0o644); err != nil {
		t.Fatalf("write slot: %v", err)
	}

	c := newCache(t, dir)
	doc, conns := c.Load()
	if len(doc.Components) == 0 {
		t.Fatal("malformed slot did not fall back to the default board")
	}
	if len(conns) == 0 {
		t.Fatal("malformed connections did not fall back to the default wiring")
	}
}

func TestLoadRejectsDocumentWithoutComponents(t *testing.T) {
	dir := t.TempDir()
	// Well-formed JSON, wrong shape: no component list means no board.
	if err := os.WriteFile(filepath.Join(dir, "document.json"), []byte(`{"updatedAt": 12}`), 0o644); err != nil {
		t.Fatalf("write slot: %v", err)
	}

	c := newCache(t, dir)
	doc, _ := c.Load()
	if doc.UpdatedAt.Millis() == 12 {
		t.Fatal("component-less document accepted instead of falling back")
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	doc := types.Document{
		Components: []types.Node{{ID: "n-1", Name: "Gateway", Status: types.StatusDone, LastUpdated: types.FromMillis(5000)}},
		UpdatedAt:  types.FromMillis(5000),
	}
	conns := []types.Edge{{From: "n-1", To: "n-1"}}

	first := newCache(t, dir)
	first.Load()
	first.Replace(doc, conns)

	second := newCache(t, dir)
	reloaded, reConns := second.Load()
	got, ok := reloaded.Node("n-1")
	if !ok || got.Name != "Gateway" || got.Status != types.StatusDone {
		t.Fatalf("document did not survive restart: %+v", reloaded)
	}
	if len(reConns) != 1 || reConns[0] != conns[0] {
		t.Fatalf("connections did not survive restart: %v", reConns)
	}
}

func TestPersistedSlotUsesWireTimestamps(t *testing.T) {
	dir := t.TempDir()
	c := newCache(t, dir)
	c.Load()
	c.SetDocument(types.Document{
		Components: []types.Node{{ID: "n-1", Name: "X", LastUpdated: types.FromMillis(9999)}},
		UpdatedAt:  types.FromMillis(9999),
	})

	data, err := os.ReadFile(filepath.Join(dir, "document.json"))
	if err != nil {
		t.Fatalf("read slot: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("slot not valid JSON: %v", err)
	}
	if string(raw["updatedAt"]) != "9999" {
		t.Fatalf("timestamp not stored as epoch milliseconds: %s", raw["updatedAt"])
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := newCache(t, t.TempDir())
	c.Load()

	doc := c.Document()
	if len(doc.Components) == 0 {
		t.Fatal("empty default document")
	}
	doc.Components[0].Name = "mutated by caller"

	if c.Document().Components[0].Name == "mutated by caller" {
		t.Fatal("accessor leaked internal state")
	}
}
