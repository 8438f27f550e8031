package macro

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// Built-in type tags.
const (
	TypeLoop       = "loop"
	TypeEndLoop    = "end_loop"
	TypeIfImage    = "if_image"
	TypeIfVariable = "if_variable"
	TypeEndIf      = "end_if"
	TypeBreak      = "break"
	TypeClick      = "click"
	TypeKeyPress   = "key_press"
	TypeWait       = "wait"
	TypeWaitImage  = "wait_image"
	TypeSetVar     = "set_variable"
	TypeRunCommand = "run_command"
	TypeCapture    = "capture"
)

// Bracket families.
const (
	FamilyLoop = "loop"
	FamilyIf   = "if"
)

// Limits bounds the settings accepted by the built-in types.
type Limits struct {
	MaxLoopCount     int
	MaxWait          time.Duration
	MaxCommandTime   time.Duration
	DefaultThreshold float64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxLoopCount:     10000,
		MaxWait:          time.Hour,
		MaxCommandTime:   10 * time.Minute,
		DefaultThreshold: 0.8,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxLoopCount <= 0 {
		l.MaxLoopCount = def.MaxLoopCount
	}
	if l.MaxWait <= 0 {
		l.MaxWait = def.MaxWait
	}
	if l.MaxCommandTime <= 0 {
		l.MaxCommandTime = def.MaxCommandTime
	}
	if l.DefaultThreshold <= 0 || l.DefaultThreshold > 1 {
		l.DefaultThreshold = def.DefaultThreshold
	}
	return l
}

// NewBuiltinRegistry returns a registry holding every built-in type.
func NewBuiltinRegistry(limits Limits) *TypeRegistry {
	r := NewTypeRegistry()
	if err := RegisterBuiltins(r, limits); err != nil {
		// Built-in descriptors are static; failing here is a programming error.
		panic(err)
	}
	return r
}

// RegisterBuiltins adds the built-in step types to r.
func RegisterBuiltins(r *TypeRegistry, limits Limits) error {
	b := builtins{limits: limits.withDefaults()}
	descriptors := []TypeDescriptor{
		{
			Tag: TypeLoop, Label: "Loop", Role: RoleOpen, Family: FamilyLoop, CloseTag: TypeEndLoop, Loop: true,
			Defaults: Settings{"count": 2},
			Validate: b.validateLoop,
			NewNode:  b.newLoop,
		},
		{Tag: TypeEndLoop, Label: "End Loop", Role: RoleClose, Family: FamilyLoop},
		{
			Tag: TypeIfImage, Label: "If Image", Role: RoleOpen, Family: FamilyIf, CloseTag: TypeEndIf,
			Defaults: Settings{"template": "", "visible": true, "timeout_ms": 0},
			Validate: b.validateImageCondition,
			NewNode:  b.newIfImage,
		},
		{
			Tag: TypeIfVariable, Label: "If Variable", Role: RoleOpen, Family: FamilyIf, CloseTag: TypeEndIf,
			Defaults: Settings{"name": "", "operator": engine.OpEquals, "value": ""},
			Validate: b.validateVariableCondition,
			NewNode:  b.newIfVariable,
		},
		{Tag: TypeEndIf, Label: "End If", Role: RoleClose, Family: FamilyIf},
		{
			Tag: TypeBreak, Label: "Break", Role: RoleAction, Break: true,
			NewNode: func(item FlatItem, _ []engine.Node) (engine.Node, error) {
				return engine.NewBreak(nodeInfo(item)), nil
			},
		},
		{
			Tag: TypeClick, Label: "Click", Role: RoleAction,
			Defaults: Settings{"x": 0, "y": 0, "button": string(engine.ButtonLeft), "clicks": 1},
			Validate: b.validateClick,
			NewNode:  b.newClick,
		},
		{
			Tag: TypeKeyPress, Label: "Key Press", Role: RoleAction,
			Defaults: Settings{"keys": ""},
			NewNode: b.newKeyPress,
		},
		{
			Tag: TypeWait, Label: "Wait", Role: RoleAction,
			Defaults: Settings{"duration_ms": 1000},
			Validate: b.validateWait,
			NewNode:  b.newWait,
		},
		{
			Tag: TypeWaitImage, Label: "Wait For Image", Role: RoleAction,
			Defaults: Settings{"template": "", "visible": true, "timeout_ms": 10000},
			Validate: b.validateImageCondition,
			NewNode:  b.newWaitImage,
		},
		{
			Tag: TypeSetVar, Label: "Set Variable", Role: RoleAction,
			Defaults: Settings{"name": "", "value": ""},
			NewNode: b.newSetVariable,
		},
		{
			Tag: TypeRunCommand, Label: "Run Command", Role: RoleAction,
			Defaults: Settings{"command": "", "timeout_ms": 60000, "ignore_exit": false},
			Validate: b.validateRunCommand,
			NewNode:  b.newRunCommand,
		},
		{
			Tag: TypeCapture, Label: "Capture Screen", Role: RoleAction,
			Defaults: Settings{"variable": ""},
			Validate: b.validateCapture,
			NewNode:  b.newCapture,
		},
	}

	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// builtins holds the factories and validators of the built-in types.
type builtins struct {
	limits Limits
}

func nodeInfo(item FlatItem) engine.NodeInfo {
	return engine.NodeInfo{Type: item.Type, Position: item.Position, Depth: item.NestDepth}
}

// ─── Validation ─────────────────────────────────────────────────────────────

// required fails when any of keys is unset or blank. Validators accept
// blank values so that freshly added default items can be saved; the
// node factories call required before building.
func required(s Settings, keys ...string) error {
	for _, key := range keys {
		if strings.TrimSpace(s.String(key, "")) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}

func (b builtins) validateLoop(s Settings) error {
	count, err := s.Int("count", 0)
	if err != nil {
		return err
	}
	if count < 1 || count > b.limits.MaxLoopCount {
		return fmt.Errorf("count must be 1-%d", b.limits.MaxLoopCount)
	}
	return nil
}

func (b builtins) validateImageCondition(s Settings) error {
	_, err := b.imageCondition(s)
	return err
}

func (b builtins) validateVariableCondition(s Settings) error {
	_, err := b.variableCondition(s)
	return err
}

func (b builtins) validateClick(s Settings) error {
	_, _, _, err := b.click(s)
	return err
}

func (b builtins) validateWait(s Settings) error {
	d, err := s.Millis("duration_ms", 0)
	if err != nil {
		return err
	}
	if d > b.limits.MaxWait {
		return fmt.Errorf("duration_ms exceeds %s", b.limits.MaxWait)
	}
	return nil
}

func (b builtins) validateRunCommand(s Settings) error {
	_, _, _, err := b.command(s)
	return err
}

func (b builtins) validateCapture(s Settings) error {
	_, err := region(s)
	return err
}

// ─── Settings Decoding ──────────────────────────────────────────────────────

func (b builtins) polling(s Settings) (engine.Polling, error) {
	timeout, err := s.Millis("timeout_ms", 0)
	if err != nil {
		return engine.Polling{}, err
	}
	interval, err := s.Millis("interval_ms", 0)
	if err != nil {
		return engine.Polling{}, err
	}
	if timeout > b.limits.MaxWait {
		return engine.Polling{}, fmt.Errorf("timeout_ms exceeds %s", b.limits.MaxWait)
	}
	return engine.Polling{Timeout: timeout, Interval: interval}, nil
}

func (b builtins) imageQuery(s Settings) (engine.ImageQuery, error) {
	template := strings.TrimSpace(s.String("template", ""))
	threshold, err := s.Float("threshold", b.limits.DefaultThreshold)
	if err != nil {
		return engine.ImageQuery{}, err
	}
	if threshold <= 0 || threshold > 1 {
		return engine.ImageQuery{}, errors.New("threshold must be in (0, 1]")
	}
	r, err := region(s)
	if err != nil {
		return engine.ImageQuery{}, err
	}
	return engine.ImageQuery{Template: template, Region: r, Threshold: threshold}, nil
}

func (b builtins) imageCondition(s Settings) (engine.ImageCondition, error) {
	q, err := b.imageQuery(s)
	if err != nil {
		return engine.ImageCondition{}, err
	}
	visible, err := s.Bool("visible", true)
	if err != nil {
		return engine.ImageCondition{}, err
	}
	p, err := b.polling(s)
	if err != nil {
		return engine.ImageCondition{}, err
	}
	return engine.ImageCondition{Query: q, Visible: visible, Polling: p}, nil
}

func (b builtins) variableCondition(s Settings) (engine.VariableCondition, error) {
	name := strings.TrimSpace(s.String("name", ""))
	op := s.String("operator", engine.OpEquals)
	if !slices.Contains(engine.Operators(), op) {
		return engine.VariableCondition{}, fmt.Errorf("operator must be one of %s", strings.Join(engine.Operators(), ", "))
	}
	p, err := b.polling(s)
	if err != nil {
		return engine.VariableCondition{}, err
	}
	return engine.VariableCondition{Name: name, Operator: op, Value: s.String("value", ""), Polling: p}, nil
}

func (b builtins) click(s Settings) (engine.ClickTarget, *engine.ImageQuery, engine.Point, error) {
	var target engine.ClickTarget
	x, err := s.Int("x", 0)
	if err != nil {
		return target, nil, engine.Point{}, err
	}
	y, err := s.Int("y", 0)
	if err != nil {
		return target, nil, engine.Point{}, err
	}
	clicks, err := s.Int("clicks", 1)
	if err != nil {
		return target, nil, engine.Point{}, err
	}
	if clicks < 1 || clicks > 3 {
		return target, nil, engine.Point{}, errors.New("clicks must be 1-3")
	}
	button := engine.MouseButton(s.String("button", string(engine.ButtonLeft)))
	switch button {
	case engine.ButtonLeft, engine.ButtonRight, engine.ButtonMiddle:
	default:
		return target, nil, engine.Point{}, fmt.Errorf("unknown button %q", button)
	}
	target = engine.ClickTarget{Point: engine.Point{X: x, Y: y}, Button: button, Clicks: clicks}

	if strings.TrimSpace(s.String("template", "")) == "" {
		if x < 0 || y < 0 {
			return target, nil, engine.Point{}, errors.New("x and y must not be negative")
		}
		return target, nil, engine.Point{}, nil
	}

	q, err := b.imageQuery(s)
	if err != nil {
		return target, nil, engine.Point{}, err
	}
	ox, err := s.Int("offset_x", 0)
	if err != nil {
		return target, nil, engine.Point{}, err
	}
	oy, err := s.Int("offset_y", 0)
	if err != nil {
		return target, nil, engine.Point{}, err
	}
	return target, &q, engine.Point{X: ox, Y: oy}, nil
}

func (b builtins) command(s Settings) (engine.CommandSpec, string, bool, error) {
	command := strings.TrimSpace(s.String("command", ""))
	args, err := s.Strings("args")
	if err != nil {
		return engine.CommandSpec{}, "", false, err
	}
	timeout, err := s.Millis("timeout_ms", 0)
	if err != nil {
		return engine.CommandSpec{}, "", false, err
	}
	if timeout > b.limits.MaxCommandTime {
		return engine.CommandSpec{}, "", false, fmt.Errorf("timeout_ms exceeds %s", b.limits.MaxCommandTime)
	}
	if timeout == 0 {
		timeout = b.limits.MaxCommandTime
	}
	ignore, err := s.Bool("ignore_exit", false)
	if err != nil {
		return engine.CommandSpec{}, "", false, err
	}
	spec := engine.CommandSpec{Command: command, Args: args, Dir: s.String("dir", ""), Timeout: timeout}
	return spec, s.String("output_var", ""), ignore, nil
}

func region(s Settings) (engine.Region, error) {
	var r engine.Region
	var err error
	if r.X, err = s.Int("region_x", 0); err != nil {
		return r, err
	}
	if r.Y, err = s.Int("region_y", 0); err != nil {
		return r, err
	}
	if r.Width, err = s.Int("region_width", 0); err != nil {
		return r, err
	}
	if r.Height, err = s.Int("region_height", 0); err != nil {
		return r, err
	}
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return r, errors.New("region must not be negative")
	}
	return r, nil
}

// ─── Node Factories ─────────────────────────────────────────────────────────

func (b builtins) newLoop(item FlatItem, body []engine.Node) (engine.Node, error) {
	count, err := item.Settings.Int("count", 1)
	if err != nil {
		return nil, err
	}
	return engine.NewLoop(nodeInfo(item), count, body), nil
}

func (b builtins) newIfImage(item FlatItem, body []engine.Node) (engine.Node, error) {
	if err := required(item.Settings, "template"); err != nil {
		return nil, err
	}
	cond, err := b.imageCondition(item.Settings)
	if err != nil {
		return nil, err
	}
	return engine.NewIf(nodeInfo(item), cond, body), nil
}

func (b builtins) newIfVariable(item FlatItem, body []engine.Node) (engine.Node, error) {
	if err := required(item.Settings, "name"); err != nil {
		return nil, err
	}
	cond, err := b.variableCondition(item.Settings)
	if err != nil {
		return nil, err
	}
	return engine.NewIf(nodeInfo(item), cond, body), nil
}

func (b builtins) newClick(item FlatItem, _ []engine.Node) (engine.Node, error) {
	target, image, offset, err := b.click(item.Settings)
	if err != nil {
		return nil, err
	}
	return engine.NewClick(nodeInfo(item), target, image, offset), nil
}

func (b builtins) newKeyPress(item FlatItem, _ []engine.Node) (engine.Node, error) {
	if err := required(item.Settings, "keys"); err != nil {
		return nil, err
	}
	return engine.NewKeyPress(nodeInfo(item), item.Settings.String("keys", "")), nil
}

func (b builtins) newWait(item FlatItem, _ []engine.Node) (engine.Node, error) {
	d, err := item.Settings.Millis("duration_ms", 0)
	if err != nil {
		return nil, err
	}
	return engine.NewWait(nodeInfo(item), d), nil
}

func (b builtins) newWaitImage(item FlatItem, _ []engine.Node) (engine.Node, error) {
	if err := required(item.Settings, "template"); err != nil {
		return nil, err
	}
	cond, err := b.imageCondition(item.Settings)
	if err != nil {
		return nil, err
	}
	return engine.NewWaitImage(nodeInfo(item), cond), nil
}

func (b builtins) newSetVariable(item FlatItem, _ []engine.Node) (engine.Node, error) {
	if err := required(item.Settings, "name"); err != nil {
		return nil, err
	}
	return engine.NewSetVariable(nodeInfo(item), item.Settings.String("name", ""), item.Settings.String("value", "")), nil
}

func (b builtins) newRunCommand(item FlatItem, _ []engine.Node) (engine.Node, error) {
	if err := required(item.Settings, "command"); err != nil {
		return nil, err
	}
	spec, outputVar, ignore, err := b.command(item.Settings)
	if err != nil {
		return nil, err
	}
	return engine.NewRunCommand(nodeInfo(item), spec, outputVar, ignore), nil
}

func (b builtins) newCapture(item FlatItem, _ []engine.Node) (engine.Node, error) {
	r, err := region(item.Settings)
	if err != nil {
		return nil, err
	}
	return engine.NewCapture(nodeInfo(item), r, item.Settings.String("variable", "")), nil
}
