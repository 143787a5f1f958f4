package remote

import (
	"context"
	"errors"

	"github.com/example/archboard/internal/types"
)

// ErrNotFound is returned by Fetch when the board row has never been written.
// It is the first-run condition, not a failure: the caller is expected to
// seed the store with the default document.
var ErrNotFound = errors.New("board document not found")

// Row is the full remote state of the board: one document, its connections,
// and the version marker stamped by whichever client wrote it last.
type Row struct {
	Document    types.Document  `json:"document"`
	Connections []types.Edge    `json:"connections"`
	UpdatedAt   types.Timestamp `json:"updatedAt"`
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	return Row{
		Document:    r.Document.Clone(),
		Connections: types.CloneEdges(r.Connections),
		UpdatedAt:   r.UpdatedAt,
	}
}

// Store is the remote document store consumed by the sync engine. It is a
// passive collaborator: read, full-row write, and a push feed of writes made
// by any client, this one included.
type Store interface {
	// Fetch reads the current row, or ErrNotFound when the board has never
	// been seeded.
	Fetch(ctx context.Context) (Row, error)
	// Write replaces the row in full.
	Write(ctx context.Context, row Row) error
	// Subscribe registers a callback invoked for every write observed on the
	// push feed and returns a function that stops delivery.
	Subscribe(ctx context.Context, fn func(Row)) (func(), error)
}
