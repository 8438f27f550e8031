package macro

import "time"

// Macro is a named, stored flat list of steps.
//
// Items are persisted detached: pair links and depths are not stored and
// are rebuilt by NewListFromItems when the macro is edited or run.
type Macro struct {
	// Identity
	ID   string `json:"id" yaml:"id,omitempty"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug,omitempty"`

	// Description (optional)
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`

	// Configuration
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Steps in list order
	Items []FlatItem `json:"items" yaml:"items"`

	// Sort order for UI display
	SortOrder int `json:"sort_order" yaml:"sort_order,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// MacroRun tracks a single run of a macro.
type MacroRun struct {
	ID            string     `json:"id"`
	MacroID       string     `json:"macro_id"`
	TriggeredAt   time.Time  `json:"triggered_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	TriggerType   string     `json:"trigger_type"`             // manual, schedule, api, cli
	TriggerSource *string    `json:"trigger_source,omitempty"` // api, editor, cli, etc.
	Status        RunStatus  `json:"status"`

	// Step counters from the run's statistics. Loops, conditionals and the
	// root are not steps.
	NodesRun       int `json:"nodes_run"`
	NodesSucceeded int `json:"nodes_succeeded"`
	NodesFailed    int `json:"nodes_failed"`

	// Failure details (populated when Status is failed)
	ErrorMessage   *string `json:"error_message,omitempty"`
	FailedPosition *int    `json:"failed_position,omitempty"`

	// Total run duration in milliseconds
	DurationMS *int `json:"duration_ms,omitempty"`
}

// RunStatus represents the state of a macro run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"    // A step failed or the tree could not be built
	RunCancelled RunStatus = "cancelled" // Context cancelled mid-run
)

// IsFinal reports whether the run has ended.
func (s RunStatus) IsFinal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// DeepCopy creates a complete independent copy of the Macro.
// Item settings are cloned so modifications to the copy do not affect
// the original. This is essential for cache isolation.
func (m *Macro) DeepCopy() *Macro {
	if m == nil {
		return nil
	}

	cpy := *m
	cpy.Description = cloneStringPtr(m.Description)

	if m.Items != nil {
		cpy.Items = make([]FlatItem, len(m.Items))
		for i, it := range m.Items {
			cpy.Items[i] = it.Clone()
		}
	}

	return &cpy
}

// DeepCopy returns an independent copy of the run record.
func (r *MacroRun) DeepCopy() *MacroRun {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.StartedAt = cloneTimePtr(r.StartedAt)
	cpy.CompletedAt = cloneTimePtr(r.CompletedAt)
	cpy.TriggerSource = cloneStringPtr(r.TriggerSource)
	cpy.ErrorMessage = cloneStringPtr(r.ErrorMessage)
	if r.FailedPosition != nil {
		v := *r.FailedPosition
		cpy.FailedPosition = &v
	}
	if r.DurationMS != nil {
		v := *r.DurationMS
		cpy.DurationMS = &v
	}
	return &cpy
}

// cloneStringPtr creates an independent copy of a *string.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
