package engine

// TreeNode is a read-only view of a built command tree.
type TreeNode struct {
	Type     string     `json:"type"`
	Position int        `json:"position,omitempty"`
	Depth    int        `json:"depth"`
	Count    int        `json:"count,omitempty"` // loop iterations
	Children []TreeNode `json:"children,omitempty"`
}

// Describe returns the view of n and its descendants.
func Describe(n Node) TreeNode {
	info := n.Info()
	tn := TreeNode{Type: info.Type, Position: info.Position, Depth: info.Depth}
	if l, ok := n.(*Loop); ok {
		tn.Count = l.Count()
	}
	if p, ok := n.(Parent); ok {
		for _, c := range p.Children() {
			tn.Children = append(tn.Children, Describe(c))
		}
	}
	return tn
}

// Size returns the number of nodes in the view, root included.
func (t TreeNode) Size() int {
	n := 1
	for _, c := range t.Children {
		n += c.Size()
	}
	return n
}
