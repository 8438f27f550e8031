package macro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nerrad567/gray-macro-core/internal/engine"
)

type runnerFixture struct {
	runner  *Runner
	library *Library
	repo    *mockRepository
	hub     *mockHub
	metrics *mockMetrics
	input   *mockInput
}

func newRunnerFixture(t *testing.T, macros ...*Macro) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		repo:    newMockRepository(),
		hub:     &mockHub{},
		metrics: &mockMetrics{},
		input:   &mockInput{},
	}
	reg := testRegistry()
	f.library = NewLibrary(f.repo, reg)
	for _, m := range macros {
		if err := f.library.CreateMacro(context.Background(), m); err != nil {
			t.Fatalf("CreateMacro(%s) error = %v", m.ID, err)
		}
	}
	f.runner = NewRunner(f.library, reg, f.repo, engine.Delegates{Input: f.input, Variables: newMapVars()}, f.hub, nil)
	f.runner.SetMetrics(f.metrics)
	return f
}

func TestRunner_RunSucceeded(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Twice", loopItem(2), clickItem(4), plain(TypeEndLoop)))

	run, err := f.runner.Run(context.Background(), "m-1", TriggerManual, "test")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != RunSucceeded {
		t.Errorf("Status = %s, want succeeded", run.Status)
	}
	if diff := cmp.Diff([]int{4, 4}, f.input.clickXs()); diff != "" {
		t.Errorf("clicks mismatch (-want +got):\n%s", diff)
	}

	stored, err := f.repo.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if stored.Status != RunSucceeded || stored.NodesRun != 2 || stored.NodesSucceeded != 2 || stored.NodesFailed != 0 {
		t.Errorf("stored run = %+v", stored)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil || stored.DurationMS == nil {
		t.Error("run timestamps not recorded")
	}
	if stored.TriggerSource == nil || *stored.TriggerSource != "test" {
		t.Errorf("TriggerSource = %v, want test", stored.TriggerSource)
	}

	if n := len(f.hub.on(ChannelRunStarted)); n != 1 {
		t.Errorf("run started events = %d, want 1", n)
	}
	finished := f.hub.on(ChannelRunFinished)
	if len(finished) != 1 || finished[0].payload["status"] != string(RunSucceeded) {
		t.Errorf("run finished events = %+v", finished)
	}

	if len(f.metrics.runs) != 1 || f.metrics.runs[0].status != string(RunSucceeded) {
		t.Errorf("run metrics = %+v", f.metrics.runs)
	}
	want := map[string]int{TypeLoop: 1, TypeClick: 2}
	if diff := cmp.Diff(want, f.metrics.steps); diff != "" {
		t.Errorf("step metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_RunFailed(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Fails", clickItem(1), clickItem(2), clickItem(3)))
	f.input.failAt = 2

	run, err := f.runner.Run(context.Background(), "m-1", TriggerAPI, "")
	var nodeErr *engine.NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("Run() error = %v, want *engine.NodeError", err)
	}
	if run.Status != RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	if run.FailedPosition == nil || *run.FailedPosition != 2 {
		t.Errorf("FailedPosition = %v, want 2", run.FailedPosition)
	}
	if run.ErrorMessage == nil {
		t.Error("ErrorMessage not set")
	}
	if run.NodesRun != 2 || run.NodesFailed != 1 {
		t.Errorf("NodesRun = %d, NodesFailed = %d, want 2 and 1", run.NodesRun, run.NodesFailed)
	}
	if n := len(f.input.clickXs()); n != 2 {
		t.Errorf("clicks = %d, want 2", n)
	}
	finished := f.hub.on(ChannelRunFinished)
	if len(finished) != 1 || finished[0].payload["failed_position"] != 2 {
		t.Errorf("run finished events = %+v", finished)
	}
}

func TestRunner_FailureInsideLoopCountsOneStep(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Nested", loopItem(3), clickItem(1), plain(TypeEndLoop)))
	f.input.failAt = 1

	run, _ := f.runner.Run(context.Background(), "m-1", TriggerManual, "")
	if run.Status != RunFailed {
		t.Fatalf("Status = %s, want failed", run.Status)
	}
	// The loop and the root fail with the click but are not steps.
	if run.NodesRun != 1 || run.NodesSucceeded != 0 || run.NodesFailed != 1 {
		t.Errorf("counters = %d run, %d succeeded, %d failed, want 1, 0, 1",
			run.NodesRun, run.NodesSucceeded, run.NodesFailed)
	}
}

func TestRunner_BuildFailureRunsNothing(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Broken", clickItem(1), loopItem(2), clickItem(2)))

	run, err := f.runner.Run(context.Background(), "m-1", TriggerManual, "")
	if !errors.Is(err, ErrUnpairedBracket) {
		t.Fatalf("Run() error = %v, want ErrUnpairedBracket", err)
	}
	if run.Status != RunFailed || run.FailedPosition == nil || *run.FailedPosition != 2 {
		t.Errorf("run = %+v", run)
	}
	if n := len(f.input.clickXs()); n != 0 {
		t.Errorf("clicks = %d, want 0", n)
	}
	if n := len(f.hub.on(ChannelRunStarted)); n != 0 {
		t.Errorf("run started events = %d, want 0", n)
	}
	if n := len(f.hub.on(ChannelRunFinished)); n != 1 {
		t.Errorf("run finished events = %d, want 1", n)
	}
}

func TestRunner_LoadErrors(t *testing.T) {
	off := testMacro("m-off", "Off", clickItem(1))
	off.Enabled = false
	f := newRunnerFixture(t, off)
	ctx := context.Background()

	if _, err := f.runner.Run(ctx, "missing", TriggerManual, ""); !errors.Is(err, ErrMacroNotFound) {
		t.Errorf("Run(missing) error = %v, want ErrMacroNotFound", err)
	}
	run, err := f.runner.Run(ctx, "m-off", TriggerManual, "")
	if !errors.Is(err, ErrMacroDisabled) || run != nil {
		t.Errorf("Run(disabled) = %v, %v; want nil, ErrMacroDisabled", run, err)
	}
	if _, err := f.runner.Start(ctx, "missing", TriggerAPI, ""); !errors.Is(err, ErrMacroNotFound) {
		t.Errorf("Start(missing) error = %v, want ErrMacroNotFound", err)
	}
	if len(f.repo.runs) != 0 {
		t.Errorf("run records created for rejected runs: %d", len(f.repo.runs))
	}
}

func TestRunner_StartAndCancel(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Long", loopItem(1000), clickItem(1), plain(TypeEndLoop)))
	f.input.delay = 5 * time.Millisecond

	clicked := make(chan struct{})
	var once sync.Once
	f.input.onClick = func(int) { once.Do(func() { close(clicked) }) }

	runID, err := f.runner.Start(context.Background(), "m-1", TriggerAPI, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-clicked:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start clicking")
	}
	if diff := cmp.Diff([]string{runID}, f.runner.ActiveRuns()); diff != "" {
		t.Errorf("ActiveRuns() mismatch (-want +got):\n%s", diff)
	}

	if err := f.runner.Cancel(runID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	f.runner.Shutdown()

	stored, err := f.repo.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if stored.Status != RunCancelled {
		t.Errorf("Status = %s, want cancelled", stored.Status)
	}
	if stored.ErrorMessage != nil {
		t.Errorf("cancelled run has error message %q", *stored.ErrorMessage)
	}
	if n := len(f.input.clickXs()); n >= 1000 {
		t.Errorf("clicks = %d, cancellation did not stop the loop", n)
	}
	if len(f.runner.ActiveRuns()) != 0 {
		t.Error("run still active after it ended")
	}
	if err := f.runner.Cancel(runID); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Cancel() after end error = %v, want ErrRunNotActive", err)
	}
}

func TestRunner_MaxRunTime(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Sleepy",
		FlatItem{Type: TypeWait, Enabled: true, Settings: Settings{"duration_ms": 60000}}, clickItem(1)))
	f.runner.SetMaxRunTime(50 * time.Millisecond)

	start := time.Now()
	run, err := f.runner.Run(context.Background(), "m-1", TriggerManual, "")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for a cancelled run", err)
	}
	if run.Status != RunCancelled {
		t.Errorf("Status = %s, want cancelled", run.Status)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("max run time not applied")
	}
	if n := len(f.input.clickXs()); n != 0 {
		t.Errorf("clicks = %d, want 0", n)
	}
}

func TestRunner_RunMacroWithoutStore(t *testing.T) {
	input := &mockInput{}
	reg := testRegistry()
	r := NewRunner(nil, reg, nil, engine.Delegates{Input: input}, nil, nil)

	var events []engine.Event
	var mu sync.Mutex
	r.AddEventSink(engine.SinkFunc(func(ev engine.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	m := &Macro{Name: "Doc", Enabled: true, Items: []FlatItem{clickItem(1), clickItem(2)}}
	run, err := r.RunMacro(context.Background(), m, TriggerCLI, "file.yaml")
	if err != nil {
		t.Fatalf("RunMacro() error = %v", err)
	}
	if run.Status != RunSucceeded || run.MacroID == "" {
		t.Errorf("run = %+v", run)
	}

	var started, finished int
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventStarted:
			started++
		case engine.EventFinished:
			finished++
		}
		if ev.RunID != run.ID {
			t.Errorf("event RunID = %q, want %q", ev.RunID, run.ID)
		}
	}
	if started != 3 || finished != 3 {
		t.Errorf("started/finished = %d/%d, want 3/3", started, finished)
	}

	m.Enabled = false
	if _, err := r.RunMacro(context.Background(), m, TriggerCLI, ""); !errors.Is(err, ErrMacroDisabled) {
		t.Errorf("RunMacro(disabled) error = %v, want ErrMacroDisabled", err)
	}
	if _, err := r.Run(context.Background(), "any", TriggerCLI, ""); !errors.Is(err, ErrMacroNotFound) {
		t.Errorf("Run() without library error = %v, want ErrMacroNotFound", err)
	}
}

func TestRunner_RecordFailureDoesNotStopRun(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Unrecorded", clickItem(1)))
	f.repo.createRunErr = errors.New("disk full")

	run, err := f.runner.Run(context.Background(), "m-1", TriggerManual, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != RunSucceeded {
		t.Errorf("Status = %s, want succeeded", run.Status)
	}
	if n := len(f.input.clickXs()); n != 1 {
		t.Errorf("clicks = %d, want 1", n)
	}
}

func TestRunner_RunsUseACopy(t *testing.T) {
	f := newRunnerFixture(t, testMacro("m-1", "Copy", clickItem(1)))

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.input.onClick = func(int) {
		once.Do(func() {
			close(blocked)
			<-release
		})
	}

	runID, err := f.runner.Start(context.Background(), "m-1", TriggerAPI, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-blocked

	// Editing the stored macro mid-run does not affect the running tree.
	_, err = f.library.EditItems(context.Background(), "m-1", func(l *List) error {
		_, err := l.Add(TypeClick)
		return err
	})
	if err != nil {
		t.Fatalf("EditItems() error = %v", err)
	}
	close(release)
	f.runner.Shutdown()

	stored, _ := f.repo.GetRun(context.Background(), runID)
	if stored.Status != RunSucceeded || stored.NodesRun != 1 {
		t.Errorf("stored run = %+v, want succeeded with 1 step", stored)
	}
}

func TestMultiHub(t *testing.T) {
	a, b := &mockHub{}, &mockHub{}
	hub := MultiHub{a, nil, b}

	hub.Broadcast(ChannelRunStarted, map[string]any{"macro_id": "m-1"})

	for name, h := range map[string]*mockHub{"a": a, "b": b} {
		if got := len(h.on(ChannelRunStarted)); got != 1 {
			t.Errorf("hub %s received %d events, want 1", name, got)
		}
	}
}
