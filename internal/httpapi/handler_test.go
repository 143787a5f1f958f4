package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/engine"
	"github.com/example/archboard/internal/identity"
	"github.com/example/archboard/internal/localcache"
	"github.com/example/archboard/internal/remote"
	"github.com/example/archboard/internal/transfer"
	"github.com/example/archboard/internal/types"
)

func testHandler(t *testing.T) (*Handler, *engine.Engine, *remote.MemoryStore) {
	t.Helper()
	store := remote.NewMemoryStore()
	row := remote.Row{
		Document: types.Document{
			Components: []types.Node{{ID: "a", Name: "Ingest", Status: types.StatusInProgress, LastUpdated: types.Now()}},
			UpdatedAt:  types.Now(),
		},
		UpdatedAt: types.Now(),
	}
	if err := store.Write(context.Background(), row); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache, err := localcache.New(t.TempDir(), zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	cache.Load()
	ident := identity.NewStaticProvider(&identity.Identity{UserID: "u-1", DisplayName: "User One"})
	eng := engine.New(cache, store, ident, nil, zerolog.New(io.Discard), nil, engine.Config{
		FieldDebounce: time.Millisecond,
		PollInterval:  time.Hour,
	})
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := eng.Document().Node("a"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial sync did not land")
		}
		time.Sleep(2 * time.Millisecond)
	}

	return NewHandler(eng, nil, nil, ident, zerolog.New(io.Discard)), eng, store
}

func TestExportServesDownloadableBlob(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/board/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "attachment") {
		t.Fatalf("missing download disposition: %q", got)
	}

	doc, _, err := transfer.Import(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("exported blob does not re-import: %v", err)
	}
	if _, ok := doc.Node("a"); !ok {
		t.Fatal("exported blob missing board content")
	}
}

func TestImportRejectsBlobWithMissingKeys(t *testing.T) {
	h, eng, _ := testHandler(t)
	before := eng.Document()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/board/import", strings.NewReader(`{"document": {"components": []}}`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", rec.Code)
	}
	if len(eng.Document().Components) != len(before.Components) {
		t.Fatal("rejected import still mutated the board")
	}
}

func TestImportReplacesBoardAndPersists(t *testing.T) {
	h, eng, store := testHandler(t)

	blob, err := transfer.Export(types.Document{
		Components: []types.Node{{ID: "x", Name: "Imported", Status: types.StatusDone}},
	}, []types.Edge{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/board/import", strings.NewReader(string(blob))))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	if _, ok := eng.Document().Node("x"); !ok {
		t.Fatal("import did not replace the local board")
	}
	row, err := store.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := row.Document.Node("x"); !ok {
		t.Fatal("import did not reach the remote store")
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"synced"`) {
		t.Fatalf("unexpected status payload: %s", rec.Body.String())
	}
}

func TestUnconfiguredServicesAnswer503(t *testing.T) {
	h, _, _ := testHandler(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/presence/ping"},
		{http.MethodGet, "/presence"},
		{http.MethodPost, "/attachments"},
		{http.MethodGet, "/attachments/url"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: status %d, want 503", tc.method, tc.path, rec.Code)
		}
	}
}
