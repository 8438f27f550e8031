package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the engine.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// defaultPollInterval is used by conditions that do not set their own interval.
const defaultPollInterval = 250 * time.Millisecond

// Options configures a RunContext.
type Options struct {
	// RunID is attached to every event. Optional.
	RunID string

	// Delegates are the effect collaborators leaves call into.
	Delegates Delegates

	// Sink receives node lifecycle events (may be nil).
	Sink EventSink

	// Logger for operation errors and debug tracing (may be nil).
	Logger Logger

	// PollInterval is the fallback interval for polling conditions.
	PollInterval time.Duration
}

// RunContext is the per-run state shared by every node of one tree.
type RunContext struct {
	runID        string
	delegates    Delegates
	sink         EventSink
	logger       Logger
	pollInterval time.Duration
	stats        *Stats
}

// NewRunContext creates the state for a single run.
func NewRunContext(opts Options) *RunContext {
	rc := &RunContext{
		runID:        opts.RunID,
		delegates:    opts.Delegates,
		sink:         opts.Sink,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		stats:        newStats(),
	}
	if rc.sink == nil {
		rc.sink = noopSink{}
	}
	if rc.logger == nil {
		rc.logger = noopLogger{}
	}
	if rc.pollInterval <= 0 {
		rc.pollInterval = defaultPollInterval
	}
	return rc
}

// RunID returns the identifier attached to this run's events.
func (rc *RunContext) RunID() string { return rc.runID }

// Delegates returns the effect collaborators for this run.
func (rc *RunContext) Delegates() Delegates { return rc.delegates }

// Stats returns the run-level statistics aggregate.
func (rc *RunContext) Stats() *Stats { return rc.stats }

// Run executes root as the top of a command tree.
//
// It returns Succeeded, Failed or Cancelled. A Broken outcome escaping the
// root means a break had no enclosing loop; it is reported as Failed with
// ErrBreakOutsideLoop.
func (rc *RunContext) Run(ctx context.Context, root Node) (Outcome, error) {
	rc.stats.start()
	defer rc.stats.finish()

	outcome, err := rc.Exec(ctx, root)
	if outcome == Broken {
		rc.logger.Error("break escaped the root", "run_id", rc.runID)
		return Failed, ErrBreakOutsideLoop
	}
	return outcome, err
}

// Exec runs a single node with the cross-cutting contract applied:
//
//  1. A node is never started once ctx is done; it reports Cancelled.
//  2. A started event is sent before Execute and a finished event after it,
//     unconditionally, including when Execute panics.
//  3. Errors are wrapped once in *NodeError at the originating node and
//     reported to the sink as an error event.
//  4. Duration and outcome are recorded into Stats. Nodes without a body
//     also count as steps.
//
// The returned error is non-nil only when the outcome is Failed.
func (rc *RunContext) Exec(ctx context.Context, n Node) (outcome Outcome, err error) {
	if ctx.Err() != nil {
		return Cancelled, nil
	}

	info := n.Info()
	started := time.Now()
	rc.notify(Event{Kind: EventStarted, Node: info})

	defer func() {
		if r := recover(); r != nil {
			outcome, err = Failed, fmt.Errorf("%w: %v", ErrPanic, r)
		}
		outcome, err = rc.settle(ctx, info, outcome, err)

		elapsed := time.Since(started)
		_, composite := n.(Parent)
		rc.stats.record(info, !composite, outcome, elapsed)
		rc.notify(Event{
			Kind:       EventFinished,
			Node:       info,
			Outcome:    outcome,
			DurationMS: elapsed.Milliseconds(),
		})
	}()

	return n.Execute(ctx, rc)
}

// settle normalises a node's result and reports first-seen errors.
func (rc *RunContext) settle(ctx context.Context, info NodeInfo, outcome Outcome, err error) (Outcome, error) {
	switch {
	case outcome == Succeeded && err != nil:
		outcome = Failed
	case outcome == Failed && err == nil:
		err = ErrOperationFailed
	case !outcome.IsTerminal():
		err = fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
		outcome = Failed
	}

	if outcome != Failed {
		return outcome, nil
	}

	// A delegate that gave up because the run was cancelled is a
	// cancellation, not an operation error.
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return Cancelled, nil
	}

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return Failed, err
	}

	wrapped := &NodeError{Node: info, Err: err}
	rc.logger.Error("macro step failed",
		"run_id", rc.runID,
		"type", info.Type,
		"position", info.Position,
		"error", err,
	)
	rc.notify(Event{Kind: EventError, Node: info, Outcome: Failed, Error: err.Error()})
	return Failed, wrapped
}

// runBody executes children in order, stopping at the first non-success.
func (rc *RunContext) runBody(ctx context.Context, children []Node) (Outcome, error) {
	for _, child := range children {
		outcome, err := rc.Exec(ctx, child)
		if outcome != Succeeded {
			return outcome, err
		}
	}
	return Succeeded, nil
}

// progress sends a progress event for a running node.
func (rc *RunContext) progress(info NodeInfo, iteration, total int, message string) {
	rc.notify(Event{
		Kind:      EventProgress,
		Node:      info,
		Iteration: iteration,
		Total:     total,
		Message:   message,
	})
}

// notify delivers an event to the sink. Sinks are observers only; a
// panicking sink is logged and otherwise ignored.
func (rc *RunContext) notify(ev Event) {
	ev.RunID = rc.runID
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	defer func() {
		if r := recover(); r != nil {
			rc.logger.Warn("event sink panic recovered", "kind", ev.Kind, "panic", r)
		}
	}()
	rc.sink.Notify(ev)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
