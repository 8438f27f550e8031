package engine

import "context"

// Outcome is the terminal state a node reports to its parent.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	Cancelled Outcome = "cancelled"
	Broken    Outcome = "broken" // Break signal, absorbed by the nearest Loop
)

// IsTerminal reports whether o is one of the four terminal outcomes.
func (o Outcome) IsTerminal() bool {
	switch o {
	case Succeeded, Failed, Cancelled, Broken:
		return true
	}
	return false
}

// NodeInfo identifies a node in events, errors and statistics.
type NodeInfo struct {
	Type     string `json:"type"`
	Position int    `json:"position"` // 1-based position of the source item, 0 for the root
	Depth    int    `json:"depth"`
}

// RootType is the type tag of the implicit root sequence.
const RootType = "root"

// Node is an executable element of a command tree.
//
// Execute must return err != nil only together with Failed. Nodes never
// call Execute on their children directly; they go through
// RunContext.Exec so that notifications and statistics are recorded.
type Node interface {
	Info() NodeInfo
	Execute(ctx context.Context, rc *RunContext) (Outcome, error)
}

// Parent is implemented by nodes that own a body.
type Parent interface {
	Children() []Node
}

// ─── Sequence ───────────────────────────────────────────────────────────────

// Sequence runs its children in order and stops at the first child that
// does not succeed. Broken is forwarded unchanged.
type Sequence struct {
	info     NodeInfo
	children []Node
}

// NewSequence creates a sequential composite.
func NewSequence(info NodeInfo, children []Node) *Sequence {
	return &Sequence{info: info, children: children}
}

// NewRoot creates the implicit "run once" container returned by the tree builder.
func NewRoot(children []Node) *Sequence {
	return NewSequence(NodeInfo{Type: RootType}, children)
}

func (s *Sequence) Info() NodeInfo   { return s.info }
func (s *Sequence) Children() []Node { return s.children }

func (s *Sequence) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	return rc.runBody(ctx, s.children)
}

// ─── Loop ───────────────────────────────────────────────────────────────────

// Loop repeats its body Count times.
//
// A Broken body run ends the loop early and the loop reports Succeeded.
// A Failed or Cancelled body run ends the loop and is forwarded.
type Loop struct {
	info     NodeInfo
	count    int
	children []Node
}

// NewLoop creates a loop node. count must be positive; the macro package
// validates item settings before nodes are built.
func NewLoop(info NodeInfo, count int, children []Node) *Loop {
	return &Loop{info: info, count: count, children: children}
}

func (l *Loop) Info() NodeInfo   { return l.info }
func (l *Loop) Children() []Node { return l.children }

// Count returns the configured number of iterations.
func (l *Loop) Count() int { return l.count }

func (l *Loop) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	for i := 1; i <= l.count; i++ {
		// A body of disabled items builds to nothing; check here so such a
		// loop still notices cancellation.
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		rc.progress(l.info, i, l.count, "")

		outcome, err := rc.runBody(ctx, l.children)
		switch outcome {
		case Succeeded:
			continue
		case Broken:
			rc.logger.Debug("loop broken", "position", l.info.Position, "iteration", i)
			return Succeeded, nil
		default:
			return outcome, err
		}
	}
	return Succeeded, nil
}

// ─── If ─────────────────────────────────────────────────────────────────────

// If runs its body only when its condition holds. A false condition is a
// successful no-op.
type If struct {
	info      NodeInfo
	condition Condition
	children  []Node
}

// NewIf creates a conditional composite.
func NewIf(info NodeInfo, condition Condition, children []Node) *If {
	return &If{info: info, condition: condition, children: children}
}

func (n *If) Info() NodeInfo   { return n.info }
func (n *If) Children() []Node { return n.children }

func (n *If) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	ok, err := n.condition.Evaluate(ctx, rc)
	if err != nil {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		return Failed, err
	}
	if !ok {
		rc.progress(n.info, 0, 0, "condition false")
		return Succeeded, nil
	}
	rc.progress(n.info, 0, 0, "condition true")
	return rc.runBody(ctx, n.children)
}

// ─── Break ──────────────────────────────────────────────────────────────────

// Break reports Broken without any side effect.
type Break struct {
	info NodeInfo
}

// NewBreak creates a break leaf.
func NewBreak(info NodeInfo) *Break {
	return &Break{info: info}
}

func (b *Break) Info() NodeInfo { return b.info }

func (b *Break) Execute(context.Context, *RunContext) (Outcome, error) {
	return Broken, nil
}
