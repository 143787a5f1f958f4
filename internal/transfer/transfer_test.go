package transfer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/example/archboard/internal/types"
)

func TestExportImportRoundTrip(t *testing.T) {
	stamp := types.FromMillis(1_700_000_000_000)
	doc := types.Document{
		Components: []types.Node{
			{
				ID:          "n-1",
				Name:        "Queue",
				Description: "buffers bursts",
				Status:      types.StatusInProgress,
				Inputs:      []string{"events"},
				Outputs:     []string{"batches"},
				Owner:       "platform",
				TagIDs:      []string{"core"},
				Position:    types.Position{X: 120.5, Y: 48},
				LastUpdated: stamp,
				Updates:     []types.UpdateEntry{{Date: stamp, Text: "backpressure added"}},
				Comments:    []types.Comment{{ID: "c-1", Author: "ana", Text: "looks right", CreatedAt: stamp}},
			},
			{ID: "n-2", Name: "Worker", Status: types.StatusPlanned, LastUpdated: stamp},
		},
		Tags:       []types.Tag{{ID: "core", Label: "Core", Color: "#4c6ef5"}},
		Milestones: []types.Milestone{{ID: "m-1", Title: "GA", Due: stamp, Done: false}},
		UpdatedAt:  stamp,
	}
	conns := []types.Edge{{From: "n-1", To: "n-2"}}

	data, err := Export(doc, conns)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	back, backConns, err := Import(data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !reflect.DeepEqual(back, doc) {
		t.Fatalf("document changed across round trip:\n got: %+v\nwant: %+v", back, doc)
	}
	if !reflect.DeepEqual(backConns, conns) {
		t.Fatalf("connections changed across round trip: %v", backConns)
	}
}

func TestExportBlobShape(t *testing.T) {
	data, err := Export(types.Document{Components: []types.Node{}, UpdatedAt: types.FromMillis(42)}, nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	blob := string(data)
	if !strings.Contains(blob, `"document"`) || !strings.Contains(blob, `"connections"`) {
		t.Fatalf("blob missing required keys: %s", blob)
	}
	// Timestamps travel as integer epoch milliseconds, never RFC 3339.
	if !strings.Contains(blob, `"updatedAt": 42`) {
		t.Fatalf("timestamp not in wire format: %s", blob)
	}
	// A nil connections slice still exports as an empty array so the blob
	// re-imports cleanly.
	if strings.Contains(blob, `"connections": null`) {
		t.Fatalf("nil connections leaked into the blob: %s", blob)
	}
}

func TestImportRejectsMissingKeys(t *testing.T) {
	cases := []string{
		`{}`,
		`{"document": {"components": []}}`,
		`{"connections": []}`,
	}
	for _, blob := range cases {
		if _, _, err := Import([]byte(blob)); !errors.Is(err, ErrMissingKeys) {
			t.Fatalf("blob %s: expected ErrMissingKeys, got %v", blob, err)
		}
	}
}

func TestImportRejectsMalformedJSON(t *testing.T) {
	_, _, err := Import([]byte(`{"document":`))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if errors.Is(err, ErrMissingKeys) {
		t.Fatal("malformed JSON misreported as missing keys")
	}
}

func TestImportNormalizesEmptyComponents(t *testing.T) {
	doc, conns, err := Import([]byte(`{"document": {"updatedAt": 7}, "connections": []}`))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if doc.Components == nil {
		t.Fatal("components not normalized to an empty slice")
	}
	if len(conns) != 0 {
		t.Fatalf("unexpected connections: %v", conns)
	}
}
