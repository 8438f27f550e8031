package macro

// ItemID addresses an item inside a List. IDs are assigned by the list and
// are only meaningful within it; they are not persisted.
type ItemID int

// NoItem is the zero ItemID, used for "no pair".
const NoItem ItemID = 0

// Role classifies a type tag for nesting purposes.
type Role string

const (
	RoleAction Role = "action" // ordinary step, including break
	RoleOpen   Role = "open"   // bracket-start (loop, if_*)
	RoleClose  Role = "close"  // bracket-end (end_loop, end_if)
)

// FlatItem is one step of a macro as the editor sees it.
//
// Position, NestDepth and Pair are derived by the list after every
// structural change and are never set by callers.
type FlatItem struct {
	ID        ItemID   `json:"id,omitempty" yaml:"-"`
	Type      string   `json:"type" yaml:"type"`
	Position  int      `json:"position,omitempty" yaml:"-"`
	NestDepth int      `json:"nest_depth" yaml:"-"`
	Pair      ItemID   `json:"pair,omitempty" yaml:"-"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Settings  Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Clone returns a copy of the item with its settings deep-copied.
func (it FlatItem) Clone() FlatItem {
	it.Settings = it.Settings.Clone()
	return it
}

// Detach returns a copy stripped of list-derived fields, suitable for
// persistence. Pairing is rebuilt from type tags and order on restore.
func (it FlatItem) Detach() FlatItem {
	cpy := it.Clone()
	cpy.ID = NoItem
	cpy.Pair = NoItem
	cpy.NestDepth = 0
	return cpy
}
