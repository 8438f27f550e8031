package engine

import (
	"context"
	"errors"
	"sync"
)

// ─── Mock Delegates ─────────────────────────────────────────────────────────

// mockInput records every click and key press.
type mockInput struct {
	mu      sync.Mutex
	clicks  []ClickTarget
	keys    []string
	failErr error
	onClick func()
}

func (m *mockInput) Click(_ context.Context, target ClickTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.clicks = append(m.clicks, target)
	if m.onClick != nil {
		m.onClick()
	}
	return nil
}

func (m *mockInput) KeyPress(_ context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.keys = append(m.keys, keys)
	return nil
}

func (m *mockInput) clickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clicks)
}

func (m *mockInput) clickXs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	xs := make([]int, len(m.clicks))
	for i, c := range m.clicks {
		xs[i] = c.Point.X
	}
	return xs
}

// mockVars is an in-memory VariableStore.
type mockVars struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMockVars() *mockVars {
	return &mockVars{vals: make(map[string]string)}
}

func (m *mockVars) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[name]
	return v, ok, nil
}

func (m *mockVars) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[name] = value
	return nil
}

// mockLocator reports an image as found after a number of misses.
type mockLocator struct {
	mu        sync.Mutex
	at        Point
	foundFrom int // call number (1-based) from which the image is visible; 0 = never
	calls     int
	err       error
}

func (m *mockLocator) Find(_ context.Context, _ ImageQuery) (Point, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Point{}, false, m.err
	}
	if m.foundFrom > 0 && m.calls >= m.foundFrom {
		return m.at, true, nil
	}
	return Point{}, false, nil
}

// mockCapturer returns a fixed reference.
type mockCapturer struct {
	ref     string
	regions []Region
}

func (m *mockCapturer) Capture(_ context.Context, region Region) (string, error) {
	m.regions = append(m.regions, region)
	return m.ref, nil
}

// mockCommands returns a canned result.
type mockCommands struct {
	result CommandResult
	err    error
	specs  []CommandSpec
}

func (m *mockCommands) Run(_ context.Context, spec CommandSpec) (CommandResult, error) {
	m.specs = append(m.specs, spec)
	return m.result, m.err
}

// recordingSink captures every event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Notify(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) byKind(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// panicNode panics when executed.
type panicNode struct{ leaf }

func (panicNode) Execute(context.Context, *RunContext) (Outcome, error) {
	panic("boom")
}

// constCondition always evaluates to the same value.
func constCondition(v bool) Condition {
	return ConditionFunc(func(context.Context, *RunContext) (bool, error) { return v, nil })
}

var errInjected = errors.New("injected failure")

// ─── Helpers ────────────────────────────────────────────────────────────────

type harness struct {
	input *mockInput
	vars  *mockVars
	sink  *recordingSink
	rc    *RunContext
}

func newHarness() *harness {
	h := &harness{
		input: &mockInput{},
		vars:  newMockVars(),
		sink:  &recordingSink{},
	}
	h.rc = NewRunContext(Options{
		RunID: "run-test",
		Delegates: Delegates{
			Input:     h.input,
			Variables: h.vars,
		},
		Sink: h.sink,
	})
	return h
}

func info(typ string, pos int) NodeInfo {
	return NodeInfo{Type: typ, Position: pos}
}

func click(pos, x int) Node {
	return NewClick(info("click", pos), ClickTarget{Point: Point{X: x, Y: x}, Button: ButtonLeft, Clicks: 1}, nil, Point{})
}
