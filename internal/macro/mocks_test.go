package macro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// ─── Repository ─────────────────────────────────────────────────────────────

// mockRepository is an in-memory implementation of Repository for testing.
type mockRepository struct {
	mu     sync.RWMutex
	macros map[string]*Macro
	runs   map[string]*MacroRun

	createRunErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		macros: make(map[string]*Macro),
		runs:   make(map[string]*MacroRun),
	}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Macro, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mac, ok := m.macros[id]
	if !ok {
		return nil, ErrMacroNotFound
	}
	return mac.DeepCopy(), nil
}

func (m *mockRepository) GetBySlug(_ context.Context, slug string) (*Macro, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mac := range m.macros {
		if mac.Slug == slug {
			return mac.DeepCopy(), nil
		}
	}
	return nil, ErrMacroNotFound
}

func (m *mockRepository) List(_ context.Context) ([]Macro, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Macro, 0, len(m.macros))
	for _, mac := range m.macros {
		out = append(out, *mac.DeepCopy())
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, mac *Macro) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.macros[mac.ID]; exists {
		return ErrMacroExists
	}
	m.macros[mac.ID] = mac.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, mac *Macro) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.macros[mac.ID]; !exists {
		return ErrMacroNotFound
	}
	m.macros[mac.ID] = mac.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.macros[id]; !exists {
		return ErrMacroNotFound
	}
	delete(m.macros, id)
	return nil
}

func (m *mockRepository) CreateRun(_ context.Context, run *MacroRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createRunErr != nil {
		return m.createRunErr
	}
	m.runs[run.ID] = run.DeepCopy()
	return nil
}

func (m *mockRepository) UpdateRun(_ context.Context, run *MacroRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; !exists {
		return ErrRunNotFound
	}
	m.runs[run.ID] = run.DeepCopy()
	return nil
}

func (m *mockRepository) GetRun(_ context.Context, id string) (*MacroRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.DeepCopy(), nil
}

func (m *mockRepository) ListRuns(_ context.Context, macroID string, _ int) ([]MacroRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MacroRun
	for _, run := range m.runs {
		if run.MacroID == macroID {
			out = append(out, *run.DeepCopy())
		}
	}
	return out, nil
}

// ─── Hub / Metrics ──────────────────────────────────────────────────────────

type hubEvent struct {
	channel string
	payload map[string]any
}

type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (h *mockHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, _ := payload.(map[string]any)
	h.events = append(h.events, hubEvent{channel: channel, payload: p})
}

func (h *mockHub) on(channel string) []hubEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hubEvent
	for _, e := range h.events {
		if e.channel == channel {
			out = append(out, e)
		}
	}
	return out
}

type runMetric struct {
	macroID     string
	status      string
	nodesRun    int
	nodesFailed int
}

type mockMetrics struct {
	mu    sync.Mutex
	runs  []runMetric
	steps map[string]int
}

func (m *mockMetrics) WriteRunMetric(macroID, status string, _ time.Duration, nodesRun, nodesFailed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, runMetric{macroID: macroID, status: status, nodesRun: nodesRun, nodesFailed: nodesFailed})
}

func (m *mockMetrics) WriteStepMetric(_, nodeType string, runs int, _, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps == nil {
		m.steps = make(map[string]int)
	}
	m.steps[nodeType] += runs
}

// ─── Delegates ──────────────────────────────────────────────────────────────

var errClickFailed = errors.New("click failed")

// mockInput records clicks and key presses.
type mockInput struct {
	mu      sync.Mutex
	clicks  []engine.Point
	keys    []string
	failAt  int           // fail the n-th click (1-based), 0 = never
	onClick func(n int)   // called after each click with the click count
	delay   time.Duration // per-click delay, honours ctx
}

func (m *mockInput) Click(ctx context.Context, target engine.ClickTarget) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	m.clicks = append(m.clicks, target.Point)
	n := len(m.clicks)
	m.mu.Unlock()
	if m.onClick != nil {
		m.onClick(n)
	}
	if m.failAt == n {
		return errClickFailed
	}
	return nil
}

func (m *mockInput) KeyPress(_ context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, keys)
	return nil
}

func (m *mockInput) clickXs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	xs := make([]int, len(m.clicks))
	for i, p := range m.clicks {
		xs[i] = p.X
	}
	return xs
}

// mapVars is a map-backed engine.VariableStore.
type mapVars struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMapVars(kv ...string) *mapVars {
	v := &mapVars{vals: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		v.vals[kv[i]] = kv[i+1]
	}
	return v
}

func (v *mapVars) Get(_ context.Context, name string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.vals[name]
	return val, ok, nil
}

func (v *mapVars) Set(_ context.Context, name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vals[name] = value
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func testRegistry() *TypeRegistry {
	return NewBuiltinRegistry(DefaultLimits())
}

func loopItem(count int) FlatItem {
	return FlatItem{Type: TypeLoop, Enabled: true, Settings: Settings{"count": count}}
}

func clickItem(x int) FlatItem {
	return FlatItem{Type: TypeClick, Enabled: true, Settings: Settings{"x": x, "y": 1}}
}

func ifVarItem(name, value string) FlatItem {
	return FlatItem{Type: TypeIfVariable, Enabled: true, Settings: Settings{"name": name, "operator": engine.OpEquals, "value": value}}
}

func plain(tag string) FlatItem {
	return FlatItem{Type: tag, Enabled: true}
}

func disabled(it FlatItem) FlatItem {
	it.Enabled = false
	return it
}

// buildList restores items into a List and fails the test on error.
func buildList(t *testing.T, reg *TypeRegistry, items ...FlatItem) *List {
	t.Helper()
	l, err := NewListFromItems(reg, items)
	if err != nil {
		t.Fatalf("NewListFromItems() error = %v", err)
	}
	return l
}

// runList builds and executes the list with the given delegates.
func runList(t *testing.T, l *List, d engine.Delegates) (engine.Outcome, error) {
	t.Helper()
	root, err := NewBuilder(l.Registry()).BuildList(l)
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}
	rc := engine.NewRunContext(engine.Options{RunID: "test", Delegates: d})
	return rc.Run(context.Background(), root)
}

func testMacro(id, name string, items ...FlatItem) *Macro {
	if items == nil {
		items = []FlatItem{}
	}
	return &Macro{
		ID:      id,
		Name:    name,
		Slug:    GenerateSlug(name),
		Enabled: true,
		Items:   items,
	}
}
