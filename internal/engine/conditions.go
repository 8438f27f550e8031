package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Condition is the predicate evaluated by an If node.
type Condition interface {
	Evaluate(ctx context.Context, rc *RunContext) (bool, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(ctx context.Context, rc *RunContext) (bool, error)

// Evaluate implements Condition.
func (f ConditionFunc) Evaluate(ctx context.Context, rc *RunContext) (bool, error) {
	return f(ctx, rc)
}

// Polling controls how long a predicate is retried before it is
// considered false. A zero Timeout evaluates exactly once.
type Polling struct {
	Timeout  time.Duration `json:"timeout"`
	Interval time.Duration `json:"interval"`
}

// poll evaluates check until it returns true, the timeout elapses, or ctx
// is done. Each wait between attempts is a cancellation point.
func (rc *RunContext) poll(ctx context.Context, p Polling, check func(context.Context) (bool, error)) (bool, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = rc.pollInterval
	}
	deadline := time.Now().Add(p.Timeout)

	for {
		ok, err := check(ctx)
		if err != nil || ok {
			return ok, err
		}

		remaining := time.Until(deadline)
		if p.Timeout <= 0 || remaining <= 0 {
			return false, nil
		}
		if err := sleep(ctx, min(interval, remaining)); err != nil {
			return false, err
		}
	}
}

// ─── Image Condition ────────────────────────────────────────────────────────

// ImageCondition holds when the template's visibility equals Visible.
type ImageCondition struct {
	Query   ImageQuery
	Visible bool
	Polling Polling
}

// Evaluate implements Condition.
func (c ImageCondition) Evaluate(ctx context.Context, rc *RunContext) (bool, error) {
	locator := rc.delegates.Locator
	if locator == nil {
		return false, fmt.Errorf("%w: image locator", ErrNoDelegate)
	}
	return rc.poll(ctx, c.Polling, func(ctx context.Context) (bool, error) {
		_, found, err := locator.Find(ctx, c.Query)
		if err != nil {
			return false, fmt.Errorf("locating %q: %w", c.Query.Template, err)
		}
		return found == c.Visible, nil
	})
}

// ─── Variable Condition ─────────────────────────────────────────────────────

// Comparison operators for VariableCondition.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpContains  = "contains"
	OpEmpty     = "empty"
	OpNotEmpty  = "not_empty"
)

// Operators lists the supported variable comparison operators.
func Operators() []string {
	return []string{OpEquals, OpNotEquals, OpContains, OpEmpty, OpNotEmpty}
}

// VariableCondition compares a stored variable against a value.
// An unset variable compares as the empty string. Value may reference
// other variables with ${name}.
type VariableCondition struct {
	Name     string
	Operator string
	Value    string
	Polling  Polling
}

// Evaluate implements Condition.
func (c VariableCondition) Evaluate(ctx context.Context, rc *RunContext) (bool, error) {
	store := rc.delegates.Variables
	if store == nil {
		return false, fmt.Errorf("%w: variable store", ErrNoDelegate)
	}
	return rc.poll(ctx, c.Polling, func(ctx context.Context) (bool, error) {
		current, _, err := store.Get(ctx, c.Name)
		if err != nil {
			return false, fmt.Errorf("reading variable %q: %w", c.Name, err)
		}
		want, err := rc.Expand(ctx, c.Value)
		if err != nil {
			return false, err
		}
		return compare(c.Operator, current, want)
	})
}

func compare(op, current, want string) (bool, error) {
	switch op {
	case OpEquals, "":
		return current == want, nil
	case OpNotEquals:
		return current != want, nil
	case OpContains:
		return strings.Contains(current, want), nil
	case OpEmpty:
		return current == "", nil
	case OpNotEmpty:
		return current != "", nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}
