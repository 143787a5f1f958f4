// Package transfer serializes the full board state to a single structured
// blob for manual export, and back for manual import. The blob shares its
// shape with the remote row and the local durable slots: timestamps travel
// as epoch milliseconds.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/archboard/internal/types"
)

// ErrMissingKeys rejects an import blob that lacks one of the two required
// top-level keys. Nothing is mutated when an import is rejected.
var ErrMissingKeys = errors.New("import blob must contain \"document\" and \"connections\"")

type blob struct {
	Document    *types.Document `json:"document"`
	Connections *[]types.Edge   `json:"connections"`
}

// Export renders the document and connections as one indented JSON blob.
func Export(doc types.Document, conns []types.Edge) ([]byte, error) {
	if conns == nil {
		conns = []types.Edge{}
	}
	out := blob{Document: &doc, Connections: &conns}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export blob: %w", err)
	}
	return data, nil
}

// Import parses an export blob back into a document and connections. A blob
// missing either required top-level key is rejected with ErrMissingKeys
// rather than crashing or producing a half-formed board.
func Import(data []byte) (types.Document, []types.Edge, error) {
	var in blob
	if err := json.Unmarshal(data, &in); err != nil {
		return types.Document{}, nil, fmt.Errorf("decode import blob: %w", err)
	}
	if in.Document == nil || in.Connections == nil {
		return types.Document{}, nil, ErrMissingKeys
	}
	doc := *in.Document
	if doc.Components == nil {
		doc.Components = []types.Node{}
	}
	return doc, *in.Connections, nil
}
