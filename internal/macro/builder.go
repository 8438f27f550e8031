package macro

import (
	"fmt"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// Builder turns a paired flat list into an executable command tree.
type Builder struct {
	registry *TypeRegistry
}

// NewBuilder creates a tree builder that resolves tags through registry.
func NewBuilder(registry *TypeRegistry) *Builder {
	return &Builder{registry: registry}
}

// BuildList builds the command tree for the current contents of l.
func (b *Builder) BuildList(l *List) (*engine.Sequence, error) {
	return b.Build(l.Items())
}

// Build produces the root of the command tree for items, which must carry
// the positions and pairs computed by a List.
//
// Structural defects are reported before any node is built, so a failed
// build has no side effects. Rules:
//
//   - every bracket item must be paired;
//   - a disabled item contributes no node; a disabled bracket-start
//     removes its whole block, end included;
//   - an enabled block with nothing between start and end is an error;
//   - a break must be enclosed by a loop block.
//
// Skipping the whole block of a disabled bracket-start departs from a
// literal cursor walk, which would step past the start alone and still
// build the items inside it. Disabling a Loop or If here disables its body.
//
// The returned root is a run-once Sequence.
func (b *Builder) Build(items []FlatItem) (*engine.Sequence, error) {
	t := &treeBuilder{registry: b.registry, items: items, index: make(map[ItemID]int, len(items))}
	for i, it := range items {
		if it.ID != NoItem {
			t.index[it.ID] = i
		}
	}
	if err := t.checkStructure(); err != nil {
		return nil, err
	}

	children, err := t.buildRange(0, len(items), 0)
	if err != nil {
		return nil, err
	}
	return engine.NewRoot(children), nil
}

// treeBuilder holds the state of one Build call.
type treeBuilder struct {
	registry *TypeRegistry
	items    []FlatItem
	index    map[ItemID]int // item ID → slice index
}

// checkStructure verifies pairing for every bracket, enabled or not.
func (t *treeBuilder) checkStructure() error {
	for i, it := range t.items {
		d, err := t.registry.Lookup(it.Type)
		if err != nil {
			return fmt.Errorf("position %d: %w", i+1, err)
		}
		if d.Role == RoleAction {
			continue
		}

		j, ok := t.pairIndex(it)
		switch d.Role {
		case RoleOpen:
			if !ok || j <= i {
				return t.structural(i, ErrUnpairedBracket)
			}
		case RoleClose:
			if !ok || j >= i {
				return t.structural(i, ErrUnmatchedEnd)
			}
		}
	}
	return nil
}

// buildRange builds the nodes for items[lo:hi]. loops is the number of
// enclosing loop blocks.
func (t *treeBuilder) buildRange(lo, hi, loops int) ([]engine.Node, error) {
	var nodes []engine.Node
	for i := lo; i < hi; {
		it := t.items[i]
		d, err := t.registry.Lookup(it.Type)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i+1, err)
		}

		switch d.Role {
		case RoleOpen:
			j, ok := t.pairIndex(it)
			if !ok || j <= i || j >= hi {
				return nil, t.structural(i, ErrUnpairedBracket)
			}
			if !it.Enabled {
				i = j + 1
				continue
			}
			if j == i+1 {
				return nil, t.structural(i, ErrEmptyBlock)
			}

			inner := loops
			if d.Loop {
				inner++
			}
			body, err := t.buildRange(i+1, j, inner)
			if err != nil {
				return nil, err
			}
			node, err := t.registry.NewNode(it, body)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
			i = j + 1

		case RoleClose:
			if !it.Enabled {
				i++
				continue
			}
			return nil, t.structural(i, ErrUnmatchedEnd)

		default:
			if !it.Enabled {
				i++
				continue
			}
			if d.Break && loops == 0 {
				return nil, t.structural(i, ErrBreakOutsideLoop)
			}
			node, err := t.registry.NewNode(it, nil)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
			i++
		}
	}
	return nodes, nil
}

func (t *treeBuilder) pairIndex(it FlatItem) (int, bool) {
	if it.Pair == NoItem {
		return 0, false
	}
	j, ok := t.index[it.Pair]
	if !ok || t.items[j].Pair != it.ID {
		return 0, false
	}
	return j, true
}

func (t *treeBuilder) structural(i int, err error) error {
	return &BuildError{Position: i + 1, Type: t.items[i].Type, Err: err}
}
