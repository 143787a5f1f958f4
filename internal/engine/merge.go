package engine

import (
	"github.com/example/archboard/internal/types"
)

// mergeIncoming folds an incoming remote document into the local one at node
// granularity. Incoming nodes are adopted wholesale unless their id is dirty,
// in which case the local in-progress edit is kept. Nodes that exist locally
// but not remotely were deleted by a peer and are dropped, except the dirty
// ones: those stay until their dirty flag clears and the next merge treats
// the remote absence as a delete. Tags and milestones carry no per-item
// dirty tracking and are adopted wholesale.
func mergeIncoming(local, incoming types.Document, dirty map[string]struct{}) types.Document {
	out := incoming.Clone()

	for i, n := range out.Components {
		if _, isDirty := dirty[n.ID]; !isDirty {
			continue
		}
		if ln, ok := local.Node(n.ID); ok {
			out.Components[i] = ln
		}
	}

	for _, ln := range local.Components {
		if _, isDirty := dirty[ln.ID]; !isDirty {
			continue
		}
		if _, ok := incoming.Node(ln.ID); ok {
			continue
		}
		out.Components = append(out.Components, ln.Clone())
	}

	return out
}
