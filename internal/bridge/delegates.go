package bridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// Bridge operations.
const (
	OpClick     = "click"
	OpKeyPress  = "key_press"
	OpFindImage = "find_image"
	OpCapture   = "capture"
)

// Input implements engine.InputInjector on an input bridge.
type Input struct {
	client *Client
}

// NewInput wraps a started client for the input bridge.
func NewInput(client *Client) *Input {
	return &Input{client: client}
}

// Click asks the bridge to click at target.
func (in *Input) Click(ctx context.Context, target engine.ClickTarget) error {
	return in.client.Request(ctx, OpClick, target, nil)
}

type keyPressParams struct {
	Keys string `json:"keys"`
}

// KeyPress asks the bridge to type or press keys.
func (in *Input) KeyPress(ctx context.Context, keys string) error {
	return in.client.Request(ctx, OpKeyPress, keyPressParams{Keys: keys}, nil)
}

// Vision implements engine.ImageLocator and engine.ScreenCapturer on a
// vision bridge.
type Vision struct {
	client *Client
}

// NewVision wraps a started client for the vision bridge.
func NewVision(client *Client) *Vision {
	return &Vision{client: client}
}

type findResult struct {
	Found bool `json:"found"`
	X     int  `json:"x"`
	Y     int  `json:"y"`
}

// Find asks the bridge to locate a template. A bridge answering
// found=false is not an error.
func (v *Vision) Find(ctx context.Context, q engine.ImageQuery) (engine.Point, bool, error) {
	var res findResult
	if err := v.client.Request(ctx, OpFindImage, q, &res); err != nil {
		return engine.Point{}, false, err
	}
	if !res.Found {
		return engine.Point{}, false, nil
	}
	return engine.Point{X: res.X, Y: res.Y}, true, nil
}

type captureResult struct {
	Ref string `json:"ref"`
}

// Capture asks the bridge to store a screenshot of region and returns its reference.
func (v *Vision) Capture(ctx context.Context, region engine.Region) (string, error) {
	var res captureResult
	if err := v.client.Request(ctx, OpCapture, region, &res); err != nil {
		return "", err
	}
	if res.Ref == "" {
		return "", fmt.Errorf("%w: capture returned no reference", ErrBadResponse)
	}
	return res.Ref, nil
}

var (
	_ engine.InputInjector  = (*Input)(nil)
	_ engine.ImageLocator   = (*Vision)(nil)
	_ engine.ScreenCapturer = (*Vision)(nil)
)
