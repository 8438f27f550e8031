package engine

import (
	"context"
	"time"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p offset by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Region is a screen rectangle. The zero Region means the whole screen.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether r selects the whole screen.
func (r Region) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

// ImageQuery describes an image to locate on screen.
type ImageQuery struct {
	Template  string  `json:"template"`
	Region    Region  `json:"region"`
	Threshold float64 `json:"threshold"` // match confidence 0..1
}

// ImageLocator finds a template image on screen.
//
// Find returns the centre of the best match and true, or false when the
// template is not visible. An error means the lookup itself failed.
type ImageLocator interface {
	Find(ctx context.Context, q ImageQuery) (Point, bool, error)
}

// ScreenCapturer captures a screen region and returns a reference to the
// stored image (a path or object key, as the implementation decides).
type ScreenCapturer interface {
	Capture(ctx context.Context, region Region) (string, error)
}

// MouseButton selects the button used by a click.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ClickTarget is a single click request.
type ClickTarget struct {
	Point  Point       `json:"point"`
	Button MouseButton `json:"button"`
	Clicks int         `json:"clicks"` // 1 = single, 2 = double
}

// InputInjector delivers synthetic input to the target machine.
type InputInjector interface {
	Click(ctx context.Context, target ClickTarget) error
	KeyPress(ctx context.Context, keys string) error
}

// VariableStore holds named string variables shared by the steps of a run.
// The store may be shared between runs; the engine provides no locking
// across runs.
type VariableStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string) error
}

// CommandSpec describes an external program to run.
type CommandSpec struct {
	Command string        `json:"command"`
	Args    []string      `json:"args,omitempty"`
	Dir     string        `json:"dir,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CommandResult is the outcome of an external program.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// CommandRunner runs external programs for run_command steps.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// Delegates bundles the effect collaborators. Any of them may be nil; a
// leaf that needs a missing delegate fails with ErrNoDelegate.
type Delegates struct {
	Locator   ImageLocator
	Capturer  ScreenCapturer
	Input     InputInjector
	Variables VariableStore
	Commands  CommandRunner
}
