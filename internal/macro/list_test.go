package macro

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tagsOf(l *List) []string {
	items := l.Items()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Type
	}
	return out
}

func TestList_AddAndInsert(t *testing.T) {
	l := NewList(testRegistry())

	if _, err := l.Add(TypeClick); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := l.Add(TypeWait); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	id, err := l.Insert(1, TypeKeyPress)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if diff := cmp.Diff([]string{TypeKeyPress, TypeClick, TypeWait}, tagsOf(l)); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	it, ok := l.Item(id)
	if !ok || it.Position != 1 || !it.Enabled {
		t.Errorf("inserted item = %+v, ok=%v", it, ok)
	}
	if it.Settings.String("keys", "x") != "" {
		t.Errorf("default keys = %q, want empty", it.Settings.String("keys", "x"))
	}
}

func TestList_InsertErrors(t *testing.T) {
	l := NewList(testRegistry())

	if _, err := l.Insert(2, TypeClick); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Insert(2) on empty list error = %v, want ErrInvalidPosition", err)
	}
	if _, err := l.Add("teleport"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Add(unknown) error = %v, want ErrUnknownType", err)
	}
	bad := FlatItem{Type: TypeLoop, Enabled: true, Settings: Settings{"count": 0}}
	if _, err := l.Append(bad); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Append(count=0) error = %v, want ErrInvalidSettings", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after failed edits, want 0", l.Len())
	}
}

func TestList_MaxItems(t *testing.T) {
	l := NewList(testRegistry())
	l.SetMaxItems(2)

	if _, err := l.Add(TypeClick); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, _, err := l.AddBlock(2, TypeLoop); !errors.Is(err, ErrTooManyItems) {
		t.Errorf("AddBlock() error = %v, want ErrTooManyItems", err)
	}
	if _, err := l.Add(TypeClick); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := l.Add(TypeClick); !errors.Is(err, ErrTooManyItems) {
		t.Errorf("Add() past limit error = %v, want ErrTooManyItems", err)
	}
}

func TestList_AddBlock(t *testing.T) {
	l := NewList(testRegistry())
	if _, err := l.Add(TypeClick); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	open, closing, err := l.AddBlock(1, TypeIfImage)
	if err != nil {
		t.Fatalf("AddBlock() error = %v", err)
	}
	if diff := cmp.Diff([]string{TypeIfImage, TypeEndIf, TypeClick}, tagsOf(l)); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	pair, ok := l.PairOf(open)
	if !ok || pair.ID != closing {
		t.Errorf("PairOf(open) = %+v, %v; want item %d", pair, ok, closing)
	}

	if _, _, err := l.AddBlock(1, TypeClick); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("AddBlock(click) error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestList_Remove(t *testing.T) {
	reg := testRegistry()
	l := buildList(t, reg, loopItem(2), clickItem(1), plain(TypeEndLoop))
	items := l.Items()

	if err := l.Remove(items[2].ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := l.PairOf(items[0].ID); ok {
		t.Error("loop still paired after its end was removed")
	}
	if diff := cmp.Diff([]string{"loop 0 0", "click 1 0"}, layout(l)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}

	if err := l.Remove(items[2].ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Remove() twice error = %v, want ErrItemNotFound", err)
	}
}

func TestList_Move(t *testing.T) {
	reg := testRegistry()
	l := buildList(t, reg, clickItem(1), loopItem(2), clickItem(2), plain(TypeEndLoop))
	items := l.Items()

	// Move the first click into the loop body.
	if err := l.Move(items[0].ID, 3); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	want := []string{"loop 0 4", "click 1 0", "click 1 0", "end_loop 0 1"}
	if diff := cmp.Diff(want, layout(l)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	moved, _ := l.Item(items[0].ID)
	if moved.Position != 3 {
		t.Errorf("moved Position = %d, want 3", moved.Position)
	}

	// Moving the end directly after the start empties the block.
	if err := l.Move(items[3].ID, 2); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	want = []string{"loop 0 2", "end_loop 0 1", "click 0 0", "click 0 0"}
	if diff := cmp.Diff(want, layout(l)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}

	if err := l.Move(items[0].ID, 9); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Move(9) error = %v, want ErrInvalidPosition", err)
	}
}

func TestList_ClearAndReuse(t *testing.T) {
	l := buildList(t, testRegistry(), clickItem(1), clickItem(2))
	old := l.Items()[0].ID

	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", l.Len())
	}
	if _, ok := l.Item(old); ok {
		t.Error("cleared item still addressable")
	}
	id, err := l.Add(TypeClick)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id == old {
		t.Error("Clear reused an item ID")
	}
}

func TestList_NonStructuralEdits(t *testing.T) {
	l := buildList(t, testRegistry(), loopItem(2), clickItem(1), plain(TypeEndLoop))
	items := l.Items()
	before := layout(l)

	if err := l.SetEnabled(items[0].ID, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if err := l.UpdateSettings(items[1].ID, Settings{"x": 50, "y": 60}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if diff := cmp.Diff(before, layout(l)); diff != "" {
		t.Errorf("non-structural edits changed the layout (-want +got):\n%s", diff)
	}

	got, _ := l.Item(items[1].ID)
	if x, _ := got.Settings.Int("x", 0); x != 50 {
		t.Errorf("x = %d, want 50", x)
	}

	if err := l.UpdateSettings(items[1].ID, Settings{"clicks": 9}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("UpdateSettings(clicks=9) error = %v, want ErrInvalidSettings", err)
	}
	got, _ = l.Item(items[1].ID)
	if x, _ := got.Settings.Int("x", 0); x != 50 {
		t.Error("rejected settings were applied")
	}
	if err := l.SetEnabled(999, true); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("SetEnabled(999) error = %v, want ErrItemNotFound", err)
	}
}

func TestList_SnapshotIsolation(t *testing.T) {
	l := buildList(t, testRegistry(), clickItem(1))
	snap := l.Items()
	snap[0].Settings["x"] = 999

	got, _ := l.At(1)
	if x, _ := got.Settings.Int("x", 0); x != 1 {
		t.Errorf("mutating snapshot changed list: x = %d", x)
	}
}

func TestList_DetachedRoundTrip(t *testing.T) {
	reg := testRegistry()
	l := buildList(t, reg,
		loopItem(3), ifVarItem("a", "1"), clickItem(1), plain(TypeEndIf), disabled(clickItem(2)), plain(TypeEndLoop),
	)

	detached := l.Detached()
	for _, it := range detached {
		if it.ID != NoItem || it.Pair != NoItem || it.NestDepth != 0 {
			t.Fatalf("detached item carries list state: %+v", it)
		}
	}

	restored := buildList(t, reg, detached...)
	if diff := cmp.Diff(layout(l), layout(restored)); diff != "" {
		t.Errorf("round trip changed layout (-want +got):\n%s", diff)
	}
	if got, _ := restored.At(5); got.Enabled {
		t.Error("round trip lost the disabled flag")
	}
}

func TestNewListFromItems(t *testing.T) {
	reg := testRegistry()

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewListFromItems(reg, []FlatItem{clickItem(1), plain("teleport")})
		if !errors.Is(err, ErrUnknownType) {
			t.Errorf("error = %v, want ErrUnknownType", err)
		}
	})

	t.Run("ignores stored pair and depth", func(t *testing.T) {
		items := []FlatItem{
			{ID: 40, Type: TypeLoop, Pair: 41, NestDepth: 7, Enabled: true, Settings: Settings{"count": 2}},
			{ID: 41, Type: TypeClick, Pair: 40, NestDepth: 3, Enabled: true},
			{Type: TypeEndLoop, Enabled: true},
		}
		l := buildList(t, reg, items...)
		want := []string{"loop 0 3", "click 1 0", "end_loop 0 1"}
		if diff := cmp.Diff(want, layout(l)); diff != "" {
			t.Errorf("layout mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("raises limit for oversized input", func(t *testing.T) {
		items := make([]FlatItem, DefaultMaxItems+1)
		for i := range items {
			items[i] = clickItem(i)
		}
		l := buildList(t, reg, items...)
		if l.Len() != DefaultMaxItems+1 {
			t.Errorf("Len() = %d", l.Len())
		}
		if _, err := l.Add(TypeClick); !errors.Is(err, ErrTooManyItems) {
			t.Errorf("Add() error = %v, want ErrTooManyItems", err)
		}
	})
}
