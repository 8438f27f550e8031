package macro

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// NodeFactory builds the executable node for an item. body holds the
// already built children for bracket-start types and is nil for actions.
type NodeFactory func(item FlatItem, body []engine.Node) (engine.Node, error)

// TypeDescriptor is one entry of the type registry.
type TypeDescriptor struct {
	// Tag is the type identifier stored in FlatItem.Type.
	Tag string `json:"tag"`

	// Label is a human readable name for the editor palette.
	Label string `json:"label"`

	// Role decides how the nesting calculator treats the tag.
	Role Role `json:"role"`

	// Family groups bracket tags that pair with each other, e.g. "loop"
	// for loop/end_loop and "if" for if_image/if_variable/end_if.
	Family string `json:"family,omitempty"`

	// CloseTag is the bracket-end inserted by List.AddBlock. Open types only.
	CloseTag string `json:"close_tag,omitempty"`

	// Loop marks bracket types whose node absorbs a break.
	Loop bool `json:"loop,omitempty"`

	// Break marks the break action. It must sit inside a Loop block.
	Break bool `json:"break,omitempty"`

	// Defaults are copied into new items of this type.
	Defaults Settings `json:"defaults,omitempty"`

	// Validate checks an item's settings. Optional.
	Validate func(Settings) error `json:"-"`

	// NewNode builds the executable node. Required for action and open
	// types, unused for close types.
	NewNode NodeFactory `json:"-"`
}

// TypeRegistry maps type tags to their descriptors. It is an explicit
// object passed to the list, the builder and the runner; there is no
// package-level registry.
//
// Registration happens at startup. All methods are thread-safe.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*TypeDescriptor
	order []string
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]*TypeDescriptor)}
}

// Register adds a type descriptor.
func (r *TypeRegistry) Register(d TypeDescriptor) error {
	if d.Tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidDescriptor)
	}
	switch d.Role {
	case RoleAction:
		if d.NewNode == nil {
			return fmt.Errorf("%w: %q has no node factory", ErrInvalidDescriptor, d.Tag)
		}
	case RoleOpen:
		if d.NewNode == nil {
			return fmt.Errorf("%w: %q has no node factory", ErrInvalidDescriptor, d.Tag)
		}
		if d.Family == "" || d.CloseTag == "" {
			return fmt.Errorf("%w: bracket %q needs a family and a close tag", ErrInvalidDescriptor, d.Tag)
		}
	case RoleClose:
		if d.Family == "" {
			return fmt.Errorf("%w: bracket %q needs a family", ErrInvalidDescriptor, d.Tag)
		}
	default:
		return fmt.Errorf("%w: %q has unknown role %q", ErrInvalidDescriptor, d.Tag, d.Role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[d.Tag]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, d.Tag)
	}
	d.Defaults = d.Defaults.Clone()
	r.types[d.Tag] = &d
	r.order = append(r.order, d.Tag)
	return nil
}

// Lookup returns the descriptor for tag.
func (r *TypeRegistry) Lookup(tag string) (TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[tag]
	if !ok {
		return TypeDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	cpy := *d
	cpy.Defaults = d.Defaults.Clone()
	return cpy, nil
}

// Has reports whether tag is registered.
func (r *TypeRegistry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[tag]
	return ok
}

// Types returns all descriptors in registration order.
func (r *TypeRegistry) Types() []TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TypeDescriptor, 0, len(r.order))
	for _, tag := range r.order {
		d := *r.types[tag]
		d.Defaults = d.Defaults.Clone()
		out = append(out, d)
	}
	return out
}

// NewItem returns a default, enabled item of the given type.
func (r *TypeRegistry) NewItem(tag string) (FlatItem, error) {
	d, err := r.Lookup(tag)
	if err != nil {
		return FlatItem{}, err
	}
	return FlatItem{Type: tag, Enabled: true, Settings: d.Defaults}, nil
}

// ValidateItem checks that the item's type is known and its settings are
// acceptable to that type.
func (r *TypeRegistry) ValidateItem(item FlatItem) error {
	d, err := r.Lookup(item.Type)
	if err != nil {
		return err
	}
	if d.Validate == nil {
		return nil
	}
	if err := d.Validate(d.Defaults.Merge(item.Settings)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSettings, item.Type, err)
	}
	return nil
}

// NewNode builds the executable node for item with the given children.
// The item's settings are applied over the type's defaults.
func (r *TypeRegistry) NewNode(item FlatItem, body []engine.Node) (engine.Node, error) {
	d, err := r.Lookup(item.Type)
	if err != nil {
		return nil, err
	}
	if d.NewNode == nil {
		return nil, fmt.Errorf("%w: %q does not build a node", ErrInvalidDescriptor, item.Type)
	}
	item.Settings = d.Defaults.Merge(item.Settings)
	if d.Validate != nil {
		if err := d.Validate(item.Settings); err != nil {
			return nil, fmt.Errorf("%w: %s at position %d: %w", ErrInvalidSettings, item.Type, item.Position, err)
		}
	}
	node, err := d.NewNode(item, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at position %d: %w", ErrInvalidSettings, item.Type, item.Position, err)
	}
	return node, nil
}

// role returns the nesting role and bracket family for tag. Unknown tags
// are treated as plain actions.
func (r *TypeRegistry) role(tag string) (Role, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.types[tag]; ok {
		return d.Role, d.Family
	}
	return RoleAction, ""
}
