package engine

import (
	"context"
	"fmt"
	"time"
)

// leaf is embedded by nodes without children.
type leaf struct {
	info NodeInfo
}

func (l leaf) Info() NodeInfo { return l.info }

// ─── Click ──────────────────────────────────────────────────────────────────

// Click clicks a fixed point, or the centre of an image when Image is set.
type Click struct {
	leaf
	Target ClickTarget
	Image  *ImageQuery // optional: locate this image and click it
	Offset Point       // added to the located image centre
}

// NewClick creates a click leaf.
func NewClick(info NodeInfo, target ClickTarget, image *ImageQuery, offset Point) *Click {
	return &Click{leaf: leaf{info: info}, Target: target, Image: image, Offset: offset}
}

func (c *Click) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	input := rc.delegates.Input
	if input == nil {
		return Failed, fmt.Errorf("%w: input injector", ErrNoDelegate)
	}

	target := c.Target
	if c.Image != nil {
		locator := rc.delegates.Locator
		if locator == nil {
			return Failed, fmt.Errorf("%w: image locator", ErrNoDelegate)
		}
		at, found, err := locator.Find(ctx, *c.Image)
		if err != nil {
			return Failed, fmt.Errorf("locating %q: %w", c.Image.Template, err)
		}
		if !found {
			return Failed, fmt.Errorf("%w: %q", ErrTargetNotFound, c.Image.Template)
		}
		target.Point = at.Add(c.Offset)
	}

	if err := input.Click(ctx, target); err != nil {
		return Failed, fmt.Errorf("click at (%d,%d): %w", target.Point.X, target.Point.Y, err)
	}
	return Succeeded, nil
}

// ─── Key Press ──────────────────────────────────────────────────────────────

// KeyPress sends a key sequence. ${name} references are expanded first.
type KeyPress struct {
	leaf
	Keys string
}

// NewKeyPress creates a key press leaf.
func NewKeyPress(info NodeInfo, keys string) *KeyPress {
	return &KeyPress{leaf: leaf{info: info}, Keys: keys}
}

func (k *KeyPress) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	input := rc.delegates.Input
	if input == nil {
		return Failed, fmt.Errorf("%w: input injector", ErrNoDelegate)
	}
	keys, err := rc.Expand(ctx, k.Keys)
	if err != nil {
		return Failed, err
	}
	if err := input.KeyPress(ctx, keys); err != nil {
		return Failed, fmt.Errorf("key press: %w", err)
	}
	return Succeeded, nil
}

// ─── Wait ───────────────────────────────────────────────────────────────────

// Wait suspends the run for a fixed duration.
type Wait struct {
	leaf
	Duration time.Duration
}

// NewWait creates a wait leaf.
func NewWait(info NodeInfo, d time.Duration) *Wait {
	return &Wait{leaf: leaf{info: info}, Duration: d}
}

func (w *Wait) Execute(ctx context.Context, _ *RunContext) (Outcome, error) {
	if err := sleep(ctx, w.Duration); err != nil {
		return Cancelled, nil
	}
	return Succeeded, nil
}

// ─── Wait Image ─────────────────────────────────────────────────────────────

// WaitImage polls until an image appears (or disappears when Visible is
// false). Not reaching that state before the timeout is a failure.
type WaitImage struct {
	leaf
	Condition ImageCondition
}

// NewWaitImage creates a wait-for-image leaf.
func NewWaitImage(info NodeInfo, cond ImageCondition) *WaitImage {
	return &WaitImage{leaf: leaf{info: info}, Condition: cond}
}

func (w *WaitImage) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	ok, err := w.Condition.Evaluate(ctx, rc)
	if err != nil {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		return Failed, err
	}
	if !ok {
		return Failed, fmt.Errorf("%w: %q after %s", ErrWaitTimeout, w.Condition.Query.Template, w.Condition.Polling.Timeout)
	}
	return Succeeded, nil
}

// ─── Set Variable ───────────────────────────────────────────────────────────

// SetVariable assigns a value to a variable. ${name} references in Value
// are expanded first.
type SetVariable struct {
	leaf
	Name  string
	Value string
}

// NewSetVariable creates a variable assignment leaf.
func NewSetVariable(info NodeInfo, name, value string) *SetVariable {
	return &SetVariable{leaf: leaf{info: info}, Name: name, Value: value}
}

func (s *SetVariable) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	store := rc.delegates.Variables
	if store == nil {
		return Failed, fmt.Errorf("%w: variable store", ErrNoDelegate)
	}
	value, err := rc.Expand(ctx, s.Value)
	if err != nil {
		return Failed, err
	}
	if err := store.Set(ctx, s.Name, value); err != nil {
		return Failed, fmt.Errorf("setting variable %q: %w", s.Name, err)
	}
	return Succeeded, nil
}

// ─── Run Command ────────────────────────────────────────────────────────────

// RunCommand runs an external program. A non-zero exit code fails the
// step unless IgnoreExit is set. Output is stored in OutputVar when given.
type RunCommand struct {
	leaf
	Spec       CommandSpec
	OutputVar  string
	IgnoreExit bool
}

// NewRunCommand creates an external command leaf.
func NewRunCommand(info NodeInfo, spec CommandSpec, outputVar string, ignoreExit bool) *RunCommand {
	return &RunCommand{leaf: leaf{info: info}, Spec: spec, OutputVar: outputVar, IgnoreExit: ignoreExit}
}

func (r *RunCommand) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	runner := rc.delegates.Commands
	if runner == nil {
		return Failed, fmt.Errorf("%w: command runner", ErrNoDelegate)
	}

	spec := r.Spec
	spec.Args = make([]string, len(r.Spec.Args))
	for i, arg := range r.Spec.Args {
		expanded, err := rc.Expand(ctx, arg)
		if err != nil {
			return Failed, err
		}
		spec.Args[i] = expanded
	}

	result, err := runner.Run(ctx, spec)
	if err != nil {
		return Failed, fmt.Errorf("running %q: %w", spec.Command, err)
	}

	if r.OutputVar != "" {
		if store := rc.delegates.Variables; store != nil {
			if err := store.Set(ctx, r.OutputVar, result.Output); err != nil {
				return Failed, fmt.Errorf("storing output in %q: %w", r.OutputVar, err)
			}
		}
	}

	if result.ExitCode != 0 && !r.IgnoreExit {
		return Failed, fmt.Errorf("%w: %q exited with code %d", ErrCommandFailed, spec.Command, result.ExitCode)
	}
	return Succeeded, nil
}

// ─── Capture ────────────────────────────────────────────────────────────────

// Capture grabs a screen region. The returned image reference is stored
// in Variable when set.
type Capture struct {
	leaf
	Region   Region
	Variable string
}

// NewCapture creates a screen capture leaf.
func NewCapture(info NodeInfo, region Region, variable string) *Capture {
	return &Capture{leaf: leaf{info: info}, Region: region, Variable: variable}
}

func (c *Capture) Execute(ctx context.Context, rc *RunContext) (Outcome, error) {
	capturer := rc.delegates.Capturer
	if capturer == nil {
		return Failed, fmt.Errorf("%w: screen capturer", ErrNoDelegate)
	}
	ref, err := capturer.Capture(ctx, c.Region)
	if err != nil {
		return Failed, fmt.Errorf("capturing screen: %w", err)
	}
	if c.Variable != "" && rc.delegates.Variables != nil {
		if err := rc.delegates.Variables.Set(ctx, c.Variable, ref); err != nil {
			return Failed, fmt.Errorf("storing capture in %q: %w", c.Variable, err)
		}
	}
	return Succeeded, nil
}
