package presence

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/identity"
)

func TestRosterFansOutToEverySubscriber(t *testing.T) {
	svc := NewService(nil, "board-1", zerolog.New(io.Discard))

	var first, second []Entry
	svc.OnChange(func(roster []Entry) { first = roster })
	svc.OnChange(func(roster []Entry) { second = roster })

	roster := []Entry{{UserID: "u-1", DisplayName: "Ana"}}
	svc.emit(roster)

	if len(first) != 1 || first[0].UserID != "u-1" {
		t.Fatalf("first subscriber: %v", first)
	}
	if len(second) != 1 || second[0].UserID != "u-1" {
		t.Fatalf("second subscriber: %v", second)
	}
}

func TestUnconfiguredServiceDegradesQuietly(t *testing.T) {
	svc := NewService(nil, "board-1", zerolog.New(io.Discard))

	if err := svc.Heartbeat(context.Background(), identity.Identity{UserID: "u-1"}); err == nil {
		t.Fatal("heartbeat without a backend must error")
	}
	roster, err := svc.Roster(context.Background())
	if err != nil || roster != nil {
		t.Fatalf("roster without a backend: %v, %v", roster, err)
	}
	svc.Start(context.Background())
	svc.Leave(context.Background(), "u-1")
}
