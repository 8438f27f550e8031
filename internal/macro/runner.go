package macro

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// MultiHub fans a broadcast out to several hubs in order. Nil entries are skipped.
type MultiHub []WSHub

// Broadcast implements WSHub.
func (m MultiHub) Broadcast(channel string, payload any) {
	for _, h := range m {
		if h != nil {
			h.Broadcast(channel, payload)
		}
	}
}

// MetricsWriter records run statistics in a time-series store.
type MetricsWriter interface {
	WriteRunMetric(macroID, status string, duration time.Duration, nodesRun, nodesFailed int)
	WriteStepMetric(macroID, nodeType string, runs int, total, max time.Duration)
}

// Run event channels.
const (
	ChannelRunStarted  = "macro.run.started"
	ChannelRunFinished = "macro.run.finished"
)

// Trigger types.
const (
	TriggerManual = "manual"
	TriggerAPI    = "api"
	TriggerCLI    = "cli"
)

// DefaultMaxRunTime is the hard limit for a single run when none is set.
const DefaultMaxRunTime = 30 * time.Minute

// Runner orchestrates macro runs.
//
// It loads a macro, restores its list, builds the command tree, executes
// it with the configured delegates, and records the result.
//
// Thread Safety: Run, Start and Cancel are safe for concurrent use. The
// runner does not serialise runs; two runs may race on the screen and
// input devices.
type Runner struct {
	library   *Library
	types     *TypeRegistry
	builder   *Builder
	repo      Repository // For run records (may be nil)
	delegates engine.Delegates
	hub       WSHub
	sinks     engine.MultiSink
	metrics   MetricsWriter
	logger    Logger

	maxRunTime   time.Duration
	pollInterval time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a macro runner.
//
// Parameters:
//   - library: Macro library for loading definitions (may be nil for document runs)
//   - types: Type registry used to restore lists and build nodes
//   - repo: Repository for persisting run records (may be nil)
//   - delegates: Effect collaborators handed to every run
//   - hub: WebSocket hub for run events (may be nil)
//   - logger: Logger instance
func NewRunner(library *Library, types *TypeRegistry, repo Repository, delegates engine.Delegates, hub WSHub, logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Runner{
		library:    library,
		types:      types,
		builder:    NewBuilder(types),
		repo:       repo,
		delegates:  delegates,
		hub:        hub,
		logger:     logger,
		maxRunTime: DefaultMaxRunTime,
		active:     make(map[string]context.CancelFunc),
	}
}

// AddEventSink registers an observer for node lifecycle events.
func (r *Runner) AddEventSink(sink engine.EventSink) {
	r.sinks = append(r.sinks, sink)
}

// SetMetrics sets the time-series writer for run statistics.
func (r *Runner) SetMetrics(m MetricsWriter) {
	r.metrics = m
}

// SetMaxRunTime sets the hard limit for a single run. d <= 0 keeps the current value.
func (r *Runner) SetMaxRunTime(d time.Duration) {
	if d > 0 {
		r.maxRunTime = d
	}
}

// SetPollInterval sets the fallback interval for polling conditions.
func (r *Runner) SetPollInterval(d time.Duration) {
	r.pollInterval = d
}

// Run executes a stored macro and blocks until it ends.
//
// Returns:
//   - *MacroRun: The run record (nil only when the macro could not be loaded)
//   - error: nil on success, or:
//   - ErrMacroNotFound if the macro doesn't exist
//   - ErrMacroDisabled if the macro is disabled
//   - a structural error (ErrStructural) if the list is malformed
//   - the failing step's *engine.NodeError
func (r *Runner) Run(ctx context.Context, macroID, triggerType, triggerSource string) (*MacroRun, error) {
	m, err := r.load(ctx, macroID)
	if err != nil {
		return nil, err
	}
	run := newRun(m.ID, triggerType, triggerSource)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.track(run.ID, cancel)
	defer r.untrack(run.ID)

	err = r.execute(runCtx, m, run)
	return run, err
}

// RunMacro executes a macro that is not necessarily stored, such as a
// document loaded from disk.
func (r *Runner) RunMacro(ctx context.Context, m *Macro, triggerType, triggerSource string) (*MacroRun, error) {
	if !m.Enabled {
		return nil, ErrMacroDisabled
	}
	if m.ID == "" {
		m.ID = GenerateID()
	}
	run := newRun(m.ID, triggerType, triggerSource)
	err := r.execute(ctx, m.DeepCopy(), run)
	return run, err
}

// Start executes a stored macro in the background and returns the run ID.
// The run is detached from ctx's cancellation; use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, macroID, triggerType, triggerSource string) (string, error) {
	m, err := r.load(ctx, macroID)
	if err != nil {
		return "", err
	}
	run := newRun(m.ID, triggerType, triggerSource)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.track(run.ID, cancel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer r.untrack(run.ID)
		_ = r.execute(runCtx, m, run) //nolint:errcheck // outcome is recorded and broadcast
	}()

	return run.ID, nil
}

// Cancel requests cooperative cancellation of an active run.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, ok := r.active[runID]
	r.mu.Unlock()

	if !ok {
		return ErrRunNotActive
	}
	cancel()
	r.logger.Info("macro run cancellation requested", "run_id", runID)
	return nil
}

// ActiveRuns returns the IDs of runs in progress.
func (r *Runner) ActiveRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels all active runs and waits for background runs to end.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Check restores and builds a macro's tree without running it.
func (r *Runner) Check(m *Macro) (*engine.Sequence, error) {
	list, err := NewListFromItems(r.types, m.Items)
	if err != nil {
		return nil, err
	}
	return r.builder.BuildList(list)
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (r *Runner) load(ctx context.Context, macroID string) (*Macro, error) {
	if r.library == nil {
		return nil, ErrMacroNotFound
	}
	m, err := r.library.GetMacro(ctx, macroID)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		return nil, ErrMacroDisabled
	}
	return m, nil
}

func newRun(macroID, triggerType, triggerSource string) *MacroRun {
	run := &MacroRun{
		ID:          GenerateID(),
		MacroID:     macroID,
		TriggeredAt: time.Now().UTC(),
		TriggerType: triggerType,
		Status:      RunPending,
	}
	if triggerSource != "" {
		run.TriggerSource = &triggerSource
	}
	return run
}

func (r *Runner) track(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.active[runID] = cancel
	r.mu.Unlock()
}

func (r *Runner) untrack(runID string) {
	r.mu.Lock()
	delete(r.active, runID)
	r.mu.Unlock()
}

// execute runs m and fills in run. The returned error is the run's
// failure cause, nil when it succeeded or was cancelled.
func (r *Runner) execute(ctx context.Context, m *Macro, run *MacroRun) error { //nolint:gocognit // run pipeline: build, execute, record
	ctx, cancel := context.WithTimeout(ctx, r.maxRunTime)
	defer cancel()

	// Records are written even when the run itself was cancelled.
	recordCtx := context.WithoutCancel(ctx)

	if r.repo != nil {
		if err := r.repo.CreateRun(recordCtx, run); err != nil {
			r.logger.Error("failed to create run record", "error", err)
		}
	}

	started := time.Now().UTC()
	run.StartedAt = &started
	run.Status = RunRunning

	root, buildErr := r.Check(m)
	if buildErr != nil {
		r.logger.Warn("macro build failed", "macro_id", m.ID, "run_id", run.ID, "error", buildErr)
		r.finish(recordCtx, m, run, started, engine.Failed, buildErr, engine.StatsSnapshot{})
		return buildErr
	}

	r.logger.Info("macro run started",
		"macro_id", m.ID,
		"macro_name", m.Name,
		"run_id", run.ID,
		"items", len(m.Items),
	)
	if r.hub != nil {
		r.hub.Broadcast(ChannelRunStarted, map[string]any{
			"macro_id":   m.ID,
			"macro_name": m.Name,
			"run_id":     run.ID,
		})
	}

	rc := engine.NewRunContext(engine.Options{
		RunID:        run.ID,
		Delegates:    r.delegates,
		Sink:         r.sinks,
		Logger:       r.logger,
		PollInterval: r.pollInterval,
	})
	outcome, runErr := rc.Run(ctx, root)

	r.finish(recordCtx, m, run, started, outcome, runErr, rc.Stats().Snapshot())
	return runErr
}

// finish completes the run record, persists it, and publishes the result.
func (r *Runner) finish(ctx context.Context, m *Macro, run *MacroRun, started time.Time, outcome engine.Outcome, runErr error, snap engine.StatsSnapshot) {
	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	duration := int(completedAt.Sub(started).Milliseconds())
	run.DurationMS = &duration

	run.NodesRun = snap.Steps
	run.NodesSucceeded = snap.StepsSucceeded
	run.NodesFailed = snap.StepsFailed

	switch outcome {
	case engine.Succeeded:
		run.Status = RunSucceeded
	case engine.Cancelled:
		run.Status = RunCancelled
	default:
		run.Status = RunFailed
	}

	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg

		var nodeErr *engine.NodeError
		var buildErr *BuildError
		switch {
		case errors.As(runErr, &nodeErr):
			pos := nodeErr.Node.Position
			run.FailedPosition = &pos
		case errors.As(runErr, &buildErr):
			pos := buildErr.Position
			run.FailedPosition = &pos
		}
	}

	if r.repo != nil {
		if err := r.repo.UpdateRun(ctx, run); err != nil {
			r.logger.Error("failed to update run record", "error", err)
		}
	}

	logArgs := []any{
		"macro_id", m.ID,
		"run_id", run.ID,
		"status", run.Status,
		"nodes_run", run.NodesRun,
		"nodes_failed", run.NodesFailed,
		"duration_ms", duration,
	}
	switch run.Status {
	case RunFailed:
		r.logger.Warn("macro run failed", append(logArgs, "error", runErr)...)
	default:
		r.logger.Info("macro run complete", logArgs...)
	}

	if r.metrics != nil {
		r.metrics.WriteRunMetric(m.ID, string(run.Status), completedAt.Sub(started), run.NodesRun, run.NodesFailed)
		for nodeType, ts := range snap.ByType {
			if nodeType == engine.RootType {
				continue
			}
			r.metrics.WriteStepMetric(m.ID, nodeType, ts.Runs, ts.Total, ts.Max)
		}
	}

	if r.hub != nil {
		payload := map[string]any{
			"macro_id":    m.ID,
			"macro_name":  m.Name,
			"run_id":      run.ID,
			"status":      string(run.Status),
			"duration_ms": duration,
		}
		if run.ErrorMessage != nil {
			payload["error"] = *run.ErrorMessage
		}
		if run.FailedPosition != nil {
			payload["failed_position"] = *run.FailedPosition
		}
		r.hub.Broadcast(ChannelRunFinished, payload)
	}
}
