package macro

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// shape renders a node tree as nested type tags, e.g. "root(loop(click))".
func shape(n engine.Node) string {
	s := n.Info().Type
	p, ok := n.(engine.Parent)
	if !ok {
		return s
	}
	s += "("
	for i, c := range p.Children() {
		if i > 0 {
			s += " "
		}
		s += shape(c)
	}
	return s + ")"
}

func TestBuilder_TreeShape(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name  string
		items []FlatItem
		want  string
	}{
		{"empty list", nil, "root()"},
		{"flat", []FlatItem{clickItem(1), plain(TypeWait)}, "root(click wait)"},
		{"loop", []FlatItem{loopItem(2), clickItem(1), plain(TypeEndLoop)}, "root(loop(click))"},
		{
			"nested",
			[]FlatItem{
				loopItem(2), clickItem(1), ifVarItem("a", "1"), plain(TypeBreak), plain(TypeEndIf), plain(TypeEndLoop), clickItem(2),
			},
			"root(loop(click if_variable(break)) click)",
		},
		{
			"disabled leaf skipped",
			[]FlatItem{clickItem(1), disabled(clickItem(2)), clickItem(3)},
			"root(click click)",
		},
		{
			"disabled block skipped whole",
			[]FlatItem{disabled(loopItem(2)), clickItem(1), plain(TypeEndLoop), clickItem(2)},
			"root(click)",
		},
		{
			"disabled end of enabled block is ignored",
			[]FlatItem{loopItem(2), clickItem(1), disabled(plain(TypeEndLoop))},
			"root(loop(click))",
		},
		{
			"all-disabled body builds empty",
			[]FlatItem{loopItem(2), disabled(clickItem(1)), plain(TypeEndLoop)},
			"root(loop())",
		},
		{
			"break inside disabled loop is not checked",
			[]FlatItem{disabled(loopItem(2)), plain(TypeBreak), plain(TypeEndLoop)},
			"root()",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := buildList(t, reg, tt.items...)
			root, err := NewBuilder(reg).BuildList(l)
			if err != nil {
				t.Fatalf("BuildList() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, shape(root)); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuilder_CarriesItemIdentity(t *testing.T) {
	reg := testRegistry()
	l := buildList(t, reg, clickItem(1), loopItem(4), clickItem(2), plain(TypeEndLoop))

	root, err := NewBuilder(reg).BuildList(l)
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}
	loop, ok := root.Children()[1].(*engine.Loop)
	if !ok {
		t.Fatalf("child 1 = %T, want *engine.Loop", root.Children()[1])
	}
	if loop.Count() != 4 {
		t.Errorf("Count() = %d, want 4", loop.Count())
	}
	want := engine.NodeInfo{Type: TypeClick, Position: 3, Depth: 1}
	if diff := cmp.Diff(want, loop.Children()[0].Info()); diff != "" {
		t.Errorf("body info mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_StructuralErrors(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name    string
		items   []FlatItem
		wantErr error
		wantPos int
	}{
		{"unclosed loop", []FlatItem{loopItem(2), clickItem(1)}, ErrUnpairedBracket, 1},
		{"stray end", []FlatItem{clickItem(1), plain(TypeEndLoop)}, ErrUnmatchedEnd, 2},
		{"mismatched family", []FlatItem{loopItem(2), clickItem(1), plain(TypeEndIf)}, ErrUnpairedBracket, 1},
		{"empty loop", []FlatItem{loopItem(2), plain(TypeEndLoop)}, ErrEmptyBlock, 1},
		{"empty if", []FlatItem{clickItem(1), ifVarItem("a", "b"), plain(TypeEndIf)}, ErrEmptyBlock, 2},
		{"break at top level", []FlatItem{clickItem(1), plain(TypeBreak)}, ErrBreakOutsideLoop, 2},
		{"break in if without loop", []FlatItem{ifVarItem("a", "b"), plain(TypeBreak), plain(TypeEndIf)}, ErrBreakOutsideLoop, 2},
		{"disabled unpaired start", []FlatItem{disabled(loopItem(2)), clickItem(1)}, ErrUnpairedBracket, 1},
		{"disabled stray end", []FlatItem{clickItem(1), disabled(plain(TypeEndIf))}, ErrUnmatchedEnd, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := buildList(t, reg, tt.items...)
			root, err := NewBuilder(reg).BuildList(l)
			if root != nil {
				t.Error("BuildList() returned a tree with an error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrStructural) {
				t.Errorf("error %v does not match ErrStructural", err)
			}
			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("error %T is not a *BuildError", err)
			}
			if be.Position != tt.wantPos {
				t.Errorf("Position = %d, want %d", be.Position, tt.wantPos)
			}
		})
	}
}

func TestBuilder_SettingsErrors(t *testing.T) {
	reg := testRegistry()

	// A default key_press has no keys; it can be stored but not built.
	l := NewList(reg)
	if _, err := l.Add(TypeKeyPress); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	_, err := NewBuilder(reg).BuildList(l)
	if !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("error = %v, want ErrInvalidSettings", err)
	}
	if errors.Is(err, ErrStructural) {
		t.Error("settings error reported as structural")
	}

	_, err = NewBuilder(reg).Build([]FlatItem{{Type: "teleport", Position: 1, Enabled: true}})
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Build(unknown) error = %v, want ErrUnknownType", err)
	}
}

// ─── Built Tree Execution ───────────────────────────────────────────────────

func TestBuiltTree_LoopRunsBody(t *testing.T) {
	input := &mockInput{}
	l := buildList(t, testRegistry(), loopItem(2), clickItem(7), plain(TypeEndLoop))

	outcome, err := runList(t, l, engine.Delegates{Input: input})
	if outcome != engine.Succeeded || err != nil {
		t.Fatalf("Run() = %s, %v; want succeeded", outcome, err)
	}
	if diff := cmp.Diff([]int{7, 7}, input.clickXs()); diff != "" {
		t.Errorf("clicks mismatch (-want +got):\n%s", diff)
	}
}

func TestBuiltTree_FalseConditionSkipsBody(t *testing.T) {
	input := &mockInput{}
	vars := newMapVars("mode", "idle")
	l := buildList(t, testRegistry(), ifVarItem("mode", "busy"), clickItem(1), plain(TypeEndIf))

	outcome, err := runList(t, l, engine.Delegates{Input: input, Variables: vars})
	if outcome != engine.Succeeded || err != nil {
		t.Fatalf("Run() = %s, %v; want succeeded", outcome, err)
	}
	if n := len(input.clickXs()); n != 0 {
		t.Errorf("clicks = %d, want 0", n)
	}
}

func TestBuiltTree_BreakEndsOnlyInnermostLoop(t *testing.T) {
	input := &mockInput{}
	vars := newMapVars("stop", "yes")
	l := buildList(t, testRegistry(),
		loopItem(2),
		loopItem(3),
		clickItem(1),
		ifVarItem("stop", "yes"), plain(TypeBreak), plain(TypeEndIf),
		clickItem(2),
		plain(TypeEndLoop),
		clickItem(3),
		plain(TypeEndLoop),
		clickItem(4),
	)

	outcome, err := runList(t, l, engine.Delegates{Input: input, Variables: vars})
	if outcome != engine.Succeeded || err != nil {
		t.Fatalf("Run() = %s, %v; want succeeded", outcome, err)
	}
	if diff := cmp.Diff([]int{1, 3, 1, 3, 4}, input.clickXs()); diff != "" {
		t.Errorf("clicks mismatch (-want +got):\n%s", diff)
	}
}

func TestBuiltTree_FailureAbortsLoop(t *testing.T) {
	input := &mockInput{failAt: 2}
	l := buildList(t, testRegistry(), loopItem(5), clickItem(1), plain(TypeEndLoop), clickItem(2))

	outcome, err := runList(t, l, engine.Delegates{Input: input})
	if outcome != engine.Failed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
	if !errors.Is(err, errClickFailed) {
		t.Errorf("error = %v, want errClickFailed", err)
	}
	var nodeErr *engine.NodeError
	if !errors.As(err, &nodeErr) || nodeErr.Node.Position != 2 {
		t.Errorf("error = %v, want NodeError at position 2", err)
	}
	if n := len(input.clickXs()); n != 2 {
		t.Errorf("clicks = %d, want 2", n)
	}
}
