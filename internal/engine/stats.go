package engine

import (
	"sync"
	"time"
)

// TypeStats aggregates executions of one node type.
type TypeStats struct {
	Runs      int           `json:"runs"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Broken    int           `json:"broken"`
	Total     time.Duration `json:"total_ns"`
	Max       time.Duration `json:"max_ns"`
}

// StatsSnapshot is a point-in-time copy of a run's statistics.
//
// NodesRun and the outcome counts cover every executed node, the root and
// composites included. The Steps fields count leaf nodes only, so a failing
// step inside a loop is one failed step rather than three failed nodes.
type StatsSnapshot struct {
	NodesRun       int                  `json:"nodes_run"`
	Succeeded      int                  `json:"succeeded"`
	Failed         int                  `json:"failed"`
	Cancelled      int                  `json:"cancelled"`
	Broken         int                  `json:"broken"`
	Steps          int                  `json:"steps"`
	StepsSucceeded int                  `json:"steps_succeeded"`
	StepsFailed    int                  `json:"steps_failed"`
	Elapsed        time.Duration        `json:"elapsed_ns"`
	ByType         map[string]TypeStats `json:"by_type"`
}

// Stats is the run-level statistics aggregate. Every executed node records
// its outcome and duration here.
//
// Thread Safety: safe for concurrent reads while the run records.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	finished time.Time
	byType   map[string]*TypeStats
	steps    TypeStats
}

func newStats() *Stats {
	return &Stats{byType: make(map[string]*TypeStats)}
}

func (s *Stats) start() {
	s.mu.Lock()
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.mu.Unlock()
}

func (s *Stats) finish() {
	s.mu.Lock()
	s.finished = time.Now()
	s.mu.Unlock()
}

// record adds one execution. step is false for the root and for nodes
// with a body.
func (s *Stats) record(info NodeInfo, step bool, outcome Outcome, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.byType[info.Type]
	if !ok {
		ts = &TypeStats{}
		s.byType[info.Type] = ts
	}
	ts.add(outcome, d)
	if step {
		s.steps.add(outcome, d)
	}
}

func (ts *TypeStats) add(outcome Outcome, d time.Duration) {
	ts.Runs++
	ts.Total += d
	if d > ts.Max {
		ts.Max = d
	}
	switch outcome {
	case Succeeded:
		ts.Succeeded++
	case Failed:
		ts.Failed++
	case Cancelled:
		ts.Cancelled++
	case Broken:
		ts.Broken++
	}
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{ByType: make(map[string]TypeStats, len(s.byType))}
	for typ, ts := range s.byType {
		snap.ByType[typ] = *ts
		snap.NodesRun += ts.Runs
		snap.Succeeded += ts.Succeeded
		snap.Failed += ts.Failed
		snap.Cancelled += ts.Cancelled
		snap.Broken += ts.Broken
	}
	snap.Steps = s.steps.Runs
	snap.StepsSucceeded = s.steps.Succeeded
	snap.StepsFailed = s.steps.Failed

	switch {
	case s.started.IsZero():
	case s.finished.IsZero():
		snap.Elapsed = time.Since(s.started)
	default:
		snap.Elapsed = s.finished.Sub(s.started)
	}
	return snap
}

// Count returns how many times nodes of the given type ran.
func (s *Stats) Count(nodeType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.byType[nodeType]; ok {
		return ts.Runs
	}
	return 0
}
