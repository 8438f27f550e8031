package macro

import "fmt"

// DefaultMaxItems is the item limit applied by NewList.
const DefaultMaxItems = 500

// List is the flat, ordered item list of one macro.
//
// Items live in an arena addressed by ItemID; Pair links are IDs rather
// than references. Every structural edit (Add, Insert, AddBlock, Remove,
// Move, Clear) re-runs the nesting and pairing calculation before it
// returns, so Position, NestDepth and Pair are always current.
//
// Thread Safety: a List is not safe for concurrent use. Edits and runs are
// separate phases; runs build from a snapshot (Items).
type List struct {
	registry *TypeRegistry
	items    []*FlatItem
	byID     map[ItemID]*FlatItem
	nextID   ItemID
	maxItems int
}

// NewList creates an empty list whose tags are resolved through registry.
func NewList(registry *TypeRegistry) *List {
	return &List{
		registry: registry,
		byID:     make(map[ItemID]*FlatItem),
		nextID:   1,
		maxItems: DefaultMaxItems,
	}
}

// NewListFromItems restores a list from persisted items. IDs, pairs and
// depths in the input are ignored and recomputed from type tags and order.
func NewListFromItems(registry *TypeRegistry, items []FlatItem) (*List, error) {
	l := NewList(registry)
	if len(items) > l.maxItems {
		l.maxItems = len(items)
	}
	for i, it := range items {
		if !registry.Has(it.Type) {
			return nil, fmt.Errorf("item %d: %w: %q", i+1, ErrUnknownType, it.Type)
		}
		l.insertAt(len(l.items), it.Clone())
	}
	l.recalculate()
	return l, nil
}

// SetMaxItems changes the item limit. n <= 0 keeps the current limit.
func (l *List) SetMaxItems(n int) {
	if n > 0 {
		l.maxItems = n
	}
}

// Registry returns the type registry used by the list.
func (l *List) Registry() *TypeRegistry { return l.registry }

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// Items returns a snapshot of all items in order.
func (l *List) Items() []FlatItem {
	out := make([]FlatItem, len(l.items))
	for i, it := range l.items {
		out[i] = it.Clone()
	}
	return out
}

// Detached returns the items with list-derived fields cleared, ready to be
// handed to a serializer.
func (l *List) Detached() []FlatItem {
	out := make([]FlatItem, len(l.items))
	for i, it := range l.items {
		out[i] = it.Detach()
	}
	return out
}

// Item returns the item with the given ID.
func (l *List) Item(id ItemID) (FlatItem, bool) {
	it, ok := l.byID[id]
	if !ok {
		return FlatItem{}, false
	}
	return it.Clone(), true
}

// At returns the item at a 1-based position.
func (l *List) At(position int) (FlatItem, bool) {
	if position < 1 || position > len(l.items) {
		return FlatItem{}, false
	}
	return l.items[position-1].Clone(), true
}

// PairOf returns the item paired with id, if any.
func (l *List) PairOf(id ItemID) (FlatItem, bool) {
	it, ok := l.byID[id]
	if !ok || it.Pair == NoItem {
		return FlatItem{}, false
	}
	return l.Item(it.Pair)
}

// ─── Structural Edits ───────────────────────────────────────────────────────

// Add appends a default item of the given type.
func (l *List) Add(tag string) (ItemID, error) {
	return l.Insert(len(l.items)+1, tag)
}

// Insert places a default item of the given type at position (1..Len()+1).
func (l *List) Insert(position int, tag string) (ItemID, error) {
	item, err := l.registry.NewItem(tag)
	if err != nil {
		return NoItem, err
	}
	return l.InsertItem(position, item)
}

// Append adds a fully specified item at the end. Settings are validated
// against the item's type.
func (l *List) Append(item FlatItem) (ItemID, error) {
	return l.InsertItem(len(l.items)+1, item)
}

// InsertItem places a fully specified item at position (1..Len()+1).
func (l *List) InsertItem(position int, item FlatItem) (ItemID, error) {
	if err := l.checkInsert(position, 1); err != nil {
		return NoItem, err
	}
	if err := l.registry.ValidateItem(item); err != nil {
		return NoItem, err
	}
	id := l.insertAt(position-1, item.Clone())
	l.recalculate()
	return id, nil
}

// AddBlock inserts a bracket-start of the given type at position together
// with its closing tag directly after it. The caller fills the body.
func (l *List) AddBlock(position int, tag string) (ItemID, ItemID, error) {
	d, err := l.registry.Lookup(tag)
	if err != nil {
		return NoItem, NoItem, err
	}
	if d.Role != RoleOpen {
		return NoItem, NoItem, fmt.Errorf("%w: %q is not a block type", ErrInvalidDescriptor, tag)
	}
	if err := l.checkInsert(position, 2); err != nil {
		return NoItem, NoItem, err
	}
	open, err := l.registry.NewItem(tag)
	if err != nil {
		return NoItem, NoItem, err
	}
	closing, err := l.registry.NewItem(d.CloseTag)
	if err != nil {
		return NoItem, NoItem, err
	}

	openID := l.insertAt(position-1, open)
	closeID := l.insertAt(position, closing)
	l.recalculate()
	return openID, closeID, nil
}

// Remove deletes an item. Its former pair, if any, becomes unpaired unless
// another bracket can claim it.
func (l *List) Remove(id ItemID) error {
	idx, err := l.indexOf(id)
	if err != nil {
		return err
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	delete(l.byID, id)
	l.recalculate()
	return nil
}

// Move relocates an item so that it ends up at position (1..Len()).
func (l *List) Move(id ItemID, position int) error {
	idx, err := l.indexOf(id)
	if err != nil {
		return err
	}
	if position < 1 || position > len(l.items) {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidPosition, position, len(l.items))
	}
	it := l.items[idx]
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	to := position - 1
	l.items = append(l.items, nil)
	copy(l.items[to+1:], l.items[to:])
	l.items[to] = it
	l.recalculate()
	return nil
}

// Clear removes every item.
func (l *List) Clear() {
	l.items = nil
	l.byID = make(map[ItemID]*FlatItem)
}

// ─── Non-structural Edits ───────────────────────────────────────────────────

// SetEnabled toggles whether an item takes part in runs. Disabled items
// keep their position and pairing.
func (l *List) SetEnabled(id ItemID, enabled bool) error {
	it, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	it.Enabled = enabled
	return nil
}

// UpdateSettings replaces an item's settings after validating them.
func (l *List) UpdateSettings(id ItemID, settings Settings) error {
	it, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	candidate := it.Clone()
	candidate.Settings = settings.Clone()
	if err := l.registry.ValidateItem(candidate); err != nil {
		return err
	}
	it.Settings = candidate.Settings
	return nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (l *List) checkInsert(position, count int) error {
	if position < 1 || position > len(l.items)+1 {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidPosition, position, len(l.items)+1)
	}
	if len(l.items)+count > l.maxItems {
		return fmt.Errorf("%w: limit is %d", ErrTooManyItems, l.maxItems)
	}
	return nil
}

// insertAt stores item at slice index idx with a fresh ID. The caller
// recalculates.
func (l *List) insertAt(idx int, item FlatItem) ItemID {
	item.ID = l.nextID
	l.nextID++
	item.Pair = NoItem

	it := &item
	l.items = append(l.items, nil)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = it
	l.byID[it.ID] = it
	return it.ID
}

func (l *List) indexOf(id ItemID) (int, error) {
	it, ok := l.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return it.Position - 1, nil
}

func (l *List) recalculate() {
	recalculate(l.items, l.registry.role)
}
