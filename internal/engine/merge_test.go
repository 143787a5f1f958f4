package engine

import (
	"testing"
	"time"

	"github.com/example/archboard/internal/types"
)

func boardOf(nodes ...types.Node) types.Document {
	return types.Document{Components: nodes}
}

func TestMergeAdoptsCollectionsWholesale(t *testing.T) {
	local := boardOf(types.Node{ID: "a", Name: "A"})
	local.Tags = []types.Tag{{ID: "old", Label: "Old"}}

	incoming := boardOf(types.Node{ID: "a", Name: "A renamed"})
	incoming.Tags = []types.Tag{{ID: "new", Label: "New"}}
	incoming.Milestones = []types.Milestone{{ID: "m1", Title: "Beta"}}

	out := mergeIncoming(local, incoming, nil)

	got, _ := out.Node("a")
	if got.Name != "A renamed" {
		t.Fatalf("clean node not adopted: %q", got.Name)
	}
	if len(out.Tags) != 1 || out.Tags[0].ID != "new" {
		t.Fatalf("tags not adopted wholesale: %v", out.Tags)
	}
	if len(out.Milestones) != 1 {
		t.Fatalf("milestones not adopted: %v", out.Milestones)
	}
}

func TestMergeKeepsDirtyNodeInIncomingOrder(t *testing.T) {
	local := boardOf(
		types.Node{ID: "a", Name: "A", Description: "mid-edit"},
		types.Node{ID: "b", Name: "B"},
	)
	incoming := boardOf(
		types.Node{ID: "b", Name: "B v2"},
		types.Node{ID: "a", Name: "A", Description: "peer version"},
	)

	out := mergeIncoming(local, incoming, map[string]struct{}{"a": {}})

	if out.Components[0].ID != "b" || out.Components[1].ID != "a" {
		t.Fatalf("incoming order not preserved: %+v", out.Components)
	}
	if out.Components[1].Description != "mid-edit" {
		t.Fatalf("dirty node lost its local edit: %q", out.Components[1].Description)
	}
}

func TestMergeReappendsDirtyNodeDeletedRemotely(t *testing.T) {
	local := boardOf(
		types.Node{ID: "a", Name: "A", Description: "mid-edit"},
		types.Node{ID: "b", Name: "B"},
	)
	incoming := boardOf(types.Node{ID: "b", Name: "B"})

	out := mergeIncoming(local, incoming, map[string]struct{}{"a": {}})
	if _, ok := out.Node("a"); !ok {
		t.Fatal("dirty node dropped on remote delete")
	}

	// Once clean the remote absence wins.
	out = mergeIncoming(local, incoming, nil)
	if _, ok := out.Node("a"); ok {
		t.Fatal("clean node resurrected after remote delete")
	}
}

func TestEchoMarkerTolerance(t *testing.T) {
	var m echoMarker
	at := types.FromMillis(10_000)

	if m.IsEcho(at, 100*time.Millisecond) {
		t.Fatal("empty marker must never match")
	}

	m.Record(at)
	cases := []struct {
		offset time.Duration
		echo   bool
	}{
		{0, true},
		{60 * time.Millisecond, true},
		{-60 * time.Millisecond, true},
		{100 * time.Millisecond, true},
		{101 * time.Millisecond, false},
		{-250 * time.Millisecond, false},
	}
	for _, tc := range cases {
		got := m.IsEcho(types.At(at.Add(tc.offset)), 100*time.Millisecond)
		if got != tc.echo {
			t.Fatalf("offset %v: echo=%v, want %v", tc.offset, got, tc.echo)
		}
	}

	if m.IsEcho(types.Timestamp{}, 100*time.Millisecond) {
		t.Fatal("zero incoming timestamp must never match")
	}
}
