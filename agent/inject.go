package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blockweave/blockweave"
)

// markerVar is set on the page's window once the agent behavior has run, so
// re-installation can be detected without re-executing it.
const markerVar = "__blockweaveAgentInstalled"

// Install injects the agent into the selected target: attach, register the
// event binding, then style first and behavior second. Re-invocation on a
// page that already carries the agent logs and returns nil.
func (b *Bridge) Install(ctx context.Context, target *Target, style, behavior string) error {
	sessionID, err := b.attach(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("%w: attach %s: %v", blockweave.ErrInjectionFailed, target.ID, err)
	}
	if err := b.enableEvents(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: enable events: %v", blockweave.ErrInjectionFailed, err)
	}

	var installed bool
	if err := b.evaluate(ctx, "!!window."+markerVar, false, &installed); err == nil && installed {
		b.logger.Info("agent already installed, skipping injection", "url", target.URL)
		return nil
	}

	if err := b.evaluate(ctx, injectStyleExpr(style), false, nil); err != nil {
		return fmt.Errorf("%w: style: %v", blockweave.ErrInjectionFailed, err)
	}
	if err := b.evaluate(ctx, behavior+";window."+markerVar+"=true;", false, nil); err != nil {
		return fmt.Errorf("%w: behavior: %v", blockweave.ErrInjectionFailed, err)
	}

	b.logger.Info("agent installed", "url", target.URL)
	return nil
}

// injectStyleExpr returns an expression appending a style element with the
// given CSS to the document head.
func injectStyleExpr(css string) string {
	quoted, _ := json.Marshal(css)
	return fmt.Sprintf(
		`(()=>{const s=document.createElement("style");s.dataset.blockweave="1";s.textContent=%s;document.head.appendChild(s);})()`,
		quoted)
}

// controlExpr dispatches a control message to the installed agent as a DOM
// event it listens for.
func controlExpr(action string) string {
	quoted, _ := json.Marshal(action)
	return fmt.Sprintf(
		`window.dispatchEvent(new CustomEvent("blockweave:control",{detail:{action:%s}}))`,
		quoted)
}

// Open tells the agent to show its selection overlay.
func (b *Bridge) Open(ctx context.Context) error {
	return b.evaluate(ctx, controlExpr("open"), false, nil)
}

// EnterSectionMode switches the agent to whole-section selection.
func (b *Bridge) EnterSectionMode(ctx context.Context) error {
	return b.evaluate(ctx, controlExpr("enter-section-mode"), false, nil)
}

// Cancel dismisses the agent's overlay and abandons any pending selection.
func (b *Bridge) Cancel(ctx context.Context) error {
	return b.evaluate(ctx, controlExpr("cancel"), false, nil)
}

// Bounds is a logical-pixel selection rectangle.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CaptureScreenshot captures the attached page and crops it to bounds
// inside the page's own rendering context, where the device pixel ratio is
// known. Returns PNG bytes.
func (b *Bridge) CaptureScreenshot(ctx context.Context, bounds Bounds) ([]byte, error) {
	var shot struct {
		Data string `json:"data"`
	}
	params := map[string]any{"format": "png", "captureBeyondViewport": false}
	if err := b.call(ctx, b.session(), "Page.captureScreenshot", params, &shot); err != nil {
		return nil, fmt.Errorf("%w: %v", blockweave.ErrCaptureFailed, err)
	}

	var cropped string
	if err := b.evaluate(ctx, cropExpr(shot.Data, bounds), true, &cropped); err != nil {
		return nil, fmt.Errorf("%w: crop: %v", blockweave.ErrCaptureFailed, err)
	}

	raw, err := base64.StdEncoding.DecodeString(stripDataURL(cropped))
	if err != nil {
		return nil, fmt.Errorf("%w: decode cropped image: %v", blockweave.ErrCaptureFailed, err)
	}
	return raw, nil
}

// cropExpr builds the in-page cropping expression. The capture is in
// physical pixels while bounds are logical, so the page multiplies by its
// own devicePixelRatio before drawing onto the canvas.
func cropExpr(b64 string, bounds Bounds) string {
	return fmt.Sprintf(`(async()=>{
const img=new Image();
img.src="data:image/png;base64,%s";
await img.decode();
const dpr=window.devicePixelRatio||1;
const c=document.createElement("canvas");
c.width=Math.round(%g*dpr);
c.height=Math.round(%g*dpr);
c.getContext("2d").drawImage(img,Math.round(%g*dpr),Math.round(%g*dpr),c.width,c.height,0,0,c.width,c.height);
return c.toDataURL("image/png");
})()`, b64, bounds.Width, bounds.Height, bounds.X, bounds.Y)
}

// stripDataURL drops a data: URL prefix, leaving bare base64.
func stripDataURL(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+1:]
	}
	return s
}
