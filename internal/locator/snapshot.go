// internal/locator/snapshot.go
package locator

// Ref identifies one element of one snapshot. A Ref is only valid against the live
// page while the page still holds the snapshot's generation.
type Ref struct {
	Generation uint64 `json:"generation"`
	Index      int    `json:"index"`
}

// Node is one element of a DOM snapshot, in document order.
type Node struct {
	Index int `json:"index"`
	// Parent is the index of the parent element, or -1 for the root.
	Parent int    `json:"parent"`
	Tag    string `json:"tag"`
	// Role is the explicit or implicit ARIA role, lower case.
	Role string `json:"role,omitempty"`
	// Name is the computed accessible name.
	Name string `json:"name,omitempty"`
	// Labels holds the text of associated <label> elements and aria-label.
	Labels      []string          `json:"labels,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Text        string            `json:"text,omitempty"`
	Value       string            `json:"value,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`
	// Matched lists indexes into Snapshot.Selectors that this element matches.
	Matched []int `json:"matched,omitempty"`

	// Hidden is true when the element is excluded from the accessibility tree.
	Hidden   bool `json:"hidden,omitempty"`
	Visible  bool `json:"visible"`
	Enabled  bool `json:"enabled"`
	Editable bool `json:"editable"`
	// Hit is true when the element (or a descendant) receives pointer events at its center.
	Hit bool `json:"hit"`
}

// Snapshot is a point-in-time capture of the page's elements.
type Snapshot struct {
	Generation uint64   `json:"generation"`
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
	Selectors  []string `json:"selectors,omitempty"`
	Nodes      []Node   `json:"nodes"`
}

// Ref returns the reference for the node at index i.
func (s *Snapshot) Ref(i int) Ref {
	return Ref{Generation: s.Generation, Index: i}
}

// Node returns the node for ref, or nil when ref belongs to another snapshot.
func (s *Snapshot) Node(ref Ref) *Node {
	if s == nil || ref.Generation != s.Generation || ref.Index < 0 || ref.Index >= len(s.Nodes) {
		return nil
	}
	return &s.Nodes[ref.Index]
}

// Attr returns the named attribute of n.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Actionable reports whether n is visible, enabled and not obstructed.
func (n *Node) Actionable() bool {
	return n.Visible && n.Enabled && n.Hit
}
