package types

import (
	"github.com/google/uuid"
)

// NodeStatus enumerates the lifecycle states a board component can be in.
type NodeStatus string

const (
	StatusPlanned    NodeStatus = "planned"
	StatusInProgress NodeStatus = "in-progress"
	StatusBlocked    NodeStatus = "blocked"
	StatusDone       NodeStatus = "done"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s NodeStatus) bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UpdateEntry is one dated free-text progress note on a node.
type UpdateEntry struct {
	Date Timestamp `json:"date"`
	Text string    `json:"text"`
}

// Comment is a single entry in a node's discussion thread.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Node is one architecture component on the board. The ID is stable for the
// lifetime of the node and acts as the merge key; LastUpdated is stamped on
// every mutation and breaks ties between concurrent copies.
type Node struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      NodeStatus    `json:"status"`
	Inputs      []string      `json:"inputs,omitempty"`
	Outputs     []string      `json:"outputs,omitempty"`
	Owner       string        `json:"owner,omitempty"`
	Scope       string        `json:"scope,omitempty"`
	Blockers    string        `json:"blockers,omitempty"`
	Updates     []UpdateEntry `json:"updates,omitempty"`
	Comments    []Comment     `json:"comments,omitempty"`
	TagIDs      []string      `json:"tagIds,omitempty"`
	Position    Position      `json:"position"`
	LastUpdated Timestamp     `json:"lastUpdated"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Inputs = append([]string(nil), n.Inputs...)
	out.Outputs = append([]string(nil), n.Outputs...)
	out.Updates = append([]UpdateEntry(nil), n.Updates...)
	out.Comments = append([]Comment(nil), n.Comments...)
	out.TagIDs = append([]string(nil), n.TagIDs...)
	return out
}

// Tag labels a group of nodes. Tags are created but never deleted.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Milestone is a dated delivery marker shown alongside the board.
type Milestone struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Due   Timestamp `json:"due"`
	Done  bool      `json:"done"`
}

// Edge is a directed connection between two node ids. Edges are stored and
// synchronized separately from the component list.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Document is the single shared board aggregate. Component order carries no
// meaning but is preserved on write. UpdatedAt is set by whichever client
// last wrote the document and serves as the sync version marker.
type Document struct {
	Components []Node      `json:"components"`
	Tags       []Tag       `json:"tags,omitempty"`
	Milestones []Milestone `json:"milestones,omitempty"`
	UpdatedAt  Timestamp   `json:"updatedAt"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Components = make([]Node, len(d.Components))
	for i, n := range d.Components {
		out.Components[i] = n.Clone()
	}
	out.Tags = append([]Tag(nil), d.Tags...)
	out.Milestones = append([]Milestone(nil), d.Milestones...)
	return out
}

// Node returns a copy of the node with the given id.
func (d Document) Node(id string) (Node, bool) {
	for _, n := range d.Components {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return Node{}, false
}

// UpsertNode replaces the node with a matching id in place, or appends it
// when the id is not present.
func (d *Document) UpsertNode(node Node) {
	for i, n := range d.Components {
		if n.ID == node.ID {
			d.Components[i] = node
			return
		}
	}
	d.Components = append(d.Components, node)
}

// RemoveNode deletes the node with the given id, reporting whether it existed.
func (d *Document) RemoveNode(id string) bool {
	for i, n := range d.Components {
		if n.ID == id {
			d.Components = append(d.Components[:i], d.Components[i+1:]...)
			return true
		}
	}
	return false
}

// DedupeTags drops tags with a previously seen id, keeping first occurrence.
func (d *Document) DedupeTags() {
	seen := make(map[string]struct{}, len(d.Tags))
	out := d.Tags[:0]
	for _, tag := range d.Tags {
		if _, ok := seen[tag.ID]; ok {
			continue
		}
		seen[tag.ID] = struct{}{}
		out = append(out, tag)
	}
	d.Tags = out
}

// PruneEdges removes every edge that touches the given node id and returns
// the filtered slice.
func PruneEdges(edges []Edge, nodeID string) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.From == nodeID || e.To == nodeID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CloneEdges returns a copy of the connections slice.
func CloneEdges(edges []Edge) []Edge {
	return append([]Edge(nil), edges...)
}

// NewNodeID mints a stable identifier for a freshly created node.
func NewNodeID() string {
	return uuid.NewString()
}

// DefaultDocument is the seed graph used on first run and whenever no usable
// local or remote copy exists.
func DefaultDocument() Document {
	now := Now()
	web := Node{ID: NewNodeID(), Name: "Web Client", Status: StatusInProgress, Position: Position{X: 80, Y: 120}, LastUpdated: now}
	api := Node{ID: NewNodeID(), Name: "API Gateway", Status: StatusPlanned, Position: Position{X: 320, Y: 120}, LastUpdated: now}
	db := Node{ID: NewNodeID(), Name: "Primary Database", Status: StatusPlanned, Position: Position{X: 560, Y: 120}, LastUpdated: now}
	return Document{
		Components: []Node{web, api, db},
		Tags:       []Tag{{ID: "core", Label: "Core", Color: "#4c6ef5"}},
		UpdatedAt:  now,
	}
}

// DefaultConnections wires the seed graph left to right.
func DefaultConnections(doc Document) []Edge {
	if len(doc.Components) < 2 {
		return nil
	}
	edges := make([]Edge, 0, len(doc.Components)-1)
	for i := 1; i < len(doc.Components); i++ {
		edges = append(edges, Edge{From: doc.Components[i-1].ID, To: doc.Components[i].ID})
	}
	return edges
}
