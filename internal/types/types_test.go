package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampWireFormat(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1700000000000", 1_700_000_000_000},
		{`"1700000000000"`, 1_700_000_000_000}, // older exports quote the value
		{"null", 0},
		{"0", 0},
	}
	for _, tc := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tc.in), &ts); err != nil {
			t.Fatalf("decode %s: %v", tc.in, err)
		}
		if ts.Millis() != tc.want {
			t.Fatalf("decode %s: got %d, want %d", tc.in, ts.Millis(), tc.want)
		}
	}

	if _, err := json.Marshal(Timestamp{}); err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	data, _ := json.Marshal(FromMillis(42))
	if string(data) != "42" {
		t.Fatalf("marshal: got %s", data)
	}

	var bad Timestamp
	if err := json.Unmarshal([]byte(`"tomorrow"`), &bad); err == nil {
		t.Fatal("expected an error for a non-numeric timestamp")
	}
}

func TestTimestampTruncatesToWirePrecision(t *testing.T) {
	fine := time.Date(2026, 3, 14, 9, 26, 53, 589_793_238, time.UTC)
	ts := At(fine)
	if got := FromMillis(ts.Millis()); !got.Equal(ts.Time) {
		t.Fatalf("round trip moved the instant: %v vs %v", got, ts)
	}
}

func TestUpsertNodeReplacesInPlace(t *testing.T) {
	doc := Document{Components: []Node{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}}

	doc.UpsertNode(Node{ID: "a", Name: "A v2"})
	if len(doc.Components) != 2 || doc.Components[0].Name != "A v2" {
		t.Fatalf("replace failed: %+v", doc.Components)
	}

	doc.UpsertNode(Node{ID: "c", Name: "C"})
	if len(doc.Components) != 3 || doc.Components[2].ID != "c" {
		t.Fatalf("append failed: %+v", doc.Components)
	}
}

func TestPruneEdges(t *testing.T) {
	edges := []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}, {From: "c", To: "a"}}
	got := PruneEdges(edges, "a")
	if len(got) != 1 || got[0] != (Edge{From: "b", To: "c"}) {
		t.Fatalf("prune: %v", got)
	}
	if got := PruneEdges(nil, "a"); len(got) != 0 {
		t.Fatalf("prune nil: %v", got)
	}
}

func TestDedupeTagsKeepsFirst(t *testing.T) {
	doc := Document{Tags: []Tag{
		{ID: "core", Label: "Core"},
		{ID: "edge", Label: "Edge"},
		{ID: "core", Label: "Core duplicate"},
	}}
	doc.DedupeTags()
	if len(doc.Tags) != 2 || doc.Tags[0].Label != "Core" || doc.Tags[1].ID != "edge" {
		t.Fatalf("dedupe: %v", doc.Tags)
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{Components: []Node{{ID: "a", Name: "A", TagIDs: []string{"core"}}}}
	cp := doc.Clone()
	cp.Components[0].TagIDs[0] = "mutated"
	if doc.Components[0].TagIDs[0] != "core" {
		t.Fatal("clone shares tag id backing array")
	}
}
