// Package remote is a stateless client for the block generation service.
// Every call is a single HTTP request; responses are decoded into typed
// results and non-2xx responses are normalized into a *CallError carrying
// the service's error string, or "HTTP <status>" when the body has none.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/blockweave/blockweave"
)

// tracerName is the instrumentation scope name for remote call tracing.
const tracerName = "github.com/blockweave/blockweave/remote"

// DefaultEndpoint is used when the stored configuration carries no override.
const DefaultEndpoint = "https://blocks.aem.workers.dev"

// Client talks to the remote generation service.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter
	tracer   trace.Tracer
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the per-call timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit caps outbound calls at n per second with the given burst.
// Zero or negative n disables limiting.
func WithRateLimit(n float64, burst int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(n), burst)
		}
	}
}

// WithTracer sets the tracer used to span each remote call. By default the
// global otel tracer is used, which is a noop unless a TracerProvider is
// installed.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// New creates a client for the service at endpoint. An empty endpoint falls
// back to DefaultEndpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 120 * time.Second},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the base URL calls are issued against.
func (c *Client) Endpoint() string { return c.endpoint }

// CallError is a normalized remote failure. Error() returns the service's
// own error string when the body carried one, otherwise "HTTP <status>".
type CallError struct {
	Status  int
	Message string
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Unwrap lets errors.Is match blockweave.ErrRemoteCallFailed.
func (e *CallError) Unwrap() error { return blockweave.ErrRemoteCallFailed }

// errorBody is the failure shape the service returns on non-2xx.
type errorBody struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// do issues one request and decodes a 2xx body into out (skipped when out is
// nil). Non-2xx responses become a *CallError.
func (c *Client) do(ctx context.Context, name string, req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("blockweave/remote: %s: %w", name, err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "blockweave.remote."+name,
		trace.WithAttributes(
			attribute.String("blockweave.remote.endpoint", c.endpoint),
			attribute.String("http.request.method", req.Method),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("blockweave/remote: %s: %w", name, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		callErr := &CallError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			callErr.Message = eb.Error
		}
		c.logger.Warn("remote call failed",
			"call", name,
			"status", resp.StatusCode,
			"error", callErr.Message)
		span.SetStatus(otelcodes.Error, callErr.Error())
		return callErr
	}

	if out == nil {
		span.SetStatus(otelcodes.Ok, "")
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("blockweave/remote: %s: decode response: %w", name, err)
	}
	span.SetStatus(otelcodes.Ok, "")
	return nil
}

// postJSON builds and runs a JSON POST against path.
func (c *Client) postJSON(ctx context.Context, name, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("blockweave/remote: %s: encode request: %w", name, err)
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("blockweave/remote: %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, name, req, out)
}

// multipartField is one text part of a multipart request. Empty values are
// skipped so optional fields never produce empty form parts.
type multipartField struct {
	name  string
	value string
}

// postMultipart builds and runs a multipart POST with an optional screenshot
// file part followed by the given text fields.
func (c *Client) postMultipart(ctx context.Context, name, path string, screenshot []byte, fields []multipartField, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if len(screenshot) > 0 {
		fw, err := mw.CreateFormFile("screenshot", "screenshot.png")
		if err != nil {
			return fmt.Errorf("blockweave/remote: %s: %w", name, err)
		}
		if _, err := fw.Write(screenshot); err != nil {
			return fmt.Errorf("blockweave/remote: %s: %w", name, err)
		}
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("blockweave/remote: %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("blockweave/remote: %s: %w", name, err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint+path, &buf)
	if err != nil {
		return fmt.Errorf("blockweave/remote: %s: %w", name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(ctx, name, req, out)
}
