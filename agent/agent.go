// Package agent drives the page-embedded selection agent through a browser
// debugging WebSocket. The bridge installs the agent's style and behavior
// into a chosen page, delivers control messages to it, and captures
// screenshots cropped inside the page's own rendering context.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// bindingName is the in-page function the agent calls to push events back
// to the bridge.
const bindingName = "__blockweaveEmit"

// Event is a message pushed asynchronously by the page agent, e.g. an
// element selection. Payload is the agent's raw JSON.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Bridge is a connection to one browser debugging endpoint.
type Bridge struct {
	url    string
	logger *slog.Logger

	conn   net.Conn
	mu     sync.Mutex // guards writes to conn
	closed atomic.Bool
	nextID atomic.Int64

	pending sync.Map // call id → chan *cdpResponse
	events  chan Event

	// session of the page currently attached for injection.
	sessionMu sync.Mutex
	sessionID string
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for the bridge.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Dial connects to a browser debugging WebSocket endpoint, e.g.
// "ws://127.0.0.1:9222/devtools/browser/<id>".
func Dial(ctx context.Context, url string, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		url:    url,
		logger: slog.Default(),
		events: make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(b)
	}

	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("blockweave/agent: dial: %w", err)
	}
	b.conn = conn

	go b.readLoop()
	return b, nil
}

// Events returns page-agent events: element selections, section selections
// and cancellations pushed from inside the page. The channel closes when
// the bridge closes.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Close tears down the connection. Pending calls fail with a closed error.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := b.conn.Close()
	b.pending.Range(func(key, value any) bool {
		close(value.(chan *cdpResponse))
		b.pending.Delete(key)
		return true
	})
	close(b.events)
	return err
}

// cdpRequest is one browser-protocol command frame.
type cdpRequest struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// cdpResponse is a command result or a pushed protocol event.
type cdpResponse struct {
	ID        int64           `json:"id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Error     *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call sends one command and waits for its correlated response.
func (b *Bridge) call(ctx context.Context, sessionID, method string, params, out any) error {
	if b.closed.Load() {
		return fmt.Errorf("blockweave/agent: %s: bridge closed", method)
	}

	id := b.nextID.Add(1)
	req := cdpRequest{ID: id, Method: method, Params: params, SessionID: sessionID}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("blockweave/agent: %s: encode: %w", method, err)
	}

	ch := make(chan *cdpResponse, 1)
	b.pending.Store(id, ch)
	defer b.pending.Delete(id)

	b.mu.Lock()
	err = wsutil.WriteClientText(b.conn, raw)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("blockweave/agent: %s: write: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("blockweave/agent: %s: %w", method, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("blockweave/agent: %s: connection closed", method)
		}
		if resp.Error != nil {
			return fmt.Errorf("blockweave/agent: %s: %s", method, resp.Error.Message)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("blockweave/agent: %s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

// readLoop dispatches responses to pending calls and forwards page-agent
// binding calls as Events. It exits when the connection closes.
func (b *Bridge) readLoop() {
	for {
		data, err := wsutil.ReadServerText(b.conn)
		if err != nil {
			if !b.closed.Load() {
				b.logger.Warn("browser connection lost", "error", err)
				b.Close()
			}
			return
		}

		var resp cdpResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			b.logger.Warn("undecodable browser frame", "error", err)
			continue
		}

		if resp.ID != 0 {
			if ch, ok := b.pending.Load(resp.ID); ok {
				ch.(chan *cdpResponse) <- &resp
			}
			continue
		}

		if resp.Method == "Runtime.bindingCalled" {
			b.handleBindingCalled(resp.Params)
		}
	}
}

// handleBindingCalled decodes an agent event pushed through the in-page
// binding and queues it for consumers. Events are dropped, with a log line,
// when no consumer keeps up.
func (b *Bridge) handleBindingCalled(params json.RawMessage) {
	var bc struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(params, &bc); err != nil || bc.Name != bindingName {
		return
	}

	var evt Event
	if err := json.Unmarshal([]byte(bc.Payload), &evt); err != nil {
		b.logger.Warn("undecodable agent event", "error", err)
		return
	}

	select {
	case b.events <- evt:
	default:
		b.logger.Warn("agent event dropped, consumer not keeping up", "type", evt.Type)
	}
}

// attach opens a flattened protocol session on the target and remembers it
// for subsequent page-scoped calls.
func (b *Bridge) attach(ctx context.Context, targetID string) (string, error) {
	var res struct {
		SessionID string `json:"sessionId"`
	}
	params := map[string]any{"targetId": targetID, "flatten": true}
	if err := b.call(ctx, "", "Target.attachToTarget", params, &res); err != nil {
		return "", err
	}

	b.sessionMu.Lock()
	b.sessionID = res.SessionID
	b.sessionMu.Unlock()
	return res.SessionID, nil
}

// session returns the page session of the last attach.
func (b *Bridge) session() string {
	b.sessionMu.Lock()
	defer b.sessionMu.Unlock()
	return b.sessionID
}

// evaluate runs a JavaScript expression in the attached page and decodes
// its by-value result into out when out is non-nil.
func (b *Bridge) evaluate(ctx context.Context, expr string, awaitPromise bool, out any) error {
	var res struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	params := map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  awaitPromise,
	}
	if err := b.call(ctx, b.session(), "Runtime.evaluate", params, &res); err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("blockweave/agent: evaluate: %s", res.ExceptionDetails.Text)
	}
	if out != nil && len(res.Result.Value) > 0 {
		if err := json.Unmarshal(res.Result.Value, out); err != nil {
			return fmt.Errorf("blockweave/agent: evaluate: decode value: %w", err)
		}
	}
	return nil
}

// enableEvents turns on the runtime domain and registers the agent binding
// so the page can push events to the bridge.
func (b *Bridge) enableEvents(ctx context.Context, sessionID string) error {
	if err := b.call(ctx, sessionID, "Runtime.enable", nil, nil); err != nil {
		return err
	}
	params := map[string]any{"name": bindingName}
	return b.call(ctx, sessionID, "Runtime.addBinding", params, nil)
}

// WaitClosed blocks until the connection closes or the context expires.
// Used by the daemon to tie its lifetime to the browser's.
func (b *Bridge) WaitClosed(ctx context.Context) {
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if b.closed.Load() {
				return
			}
		}
	}
}
