package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/blockweave/blockweave/coordinator"
	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/id"
	"github.com/blockweave/blockweave/state"
)

// Server exposes the coordinator over WebSocket and one-shot HTTP RPC.
// It is also a hooks extension: registered on the coordinator's registry,
// it pushes lifecycle events to every open connection.
type Server struct {
	coord        *coordinator.Coordinator
	logger       *slog.Logger
	defaultCodec Codec
	basePath     string
	authToken    string

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath mounts the endpoints under a different prefix (default "/wire").
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

// WithDefaultCodec sets the codec used before negotiation.
func WithDefaultCodec(c Codec) Option {
	return func(s *Server) { s.defaultCodec = c }
}

// WithAuthToken requires a shared bearer token on every endpoint. Clients
// send it as "Authorization: Bearer <token>" or, for WebSocket dials that
// cannot set headers, as an "access_token" query parameter. Empty token
// leaves the server open.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// NewServer creates a wire server over the coordinator.
func NewServer(coord *coordinator.Coordinator, opts ...Option) *Server {
	s := &Server{
		coord:        coord,
		logger:       slog.Default(),
		defaultCodec: &JSONCodec{},
		basePath:     "/wire",
		conns:        make(map[*wsConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving the WebSocket endpoint at the
// base path and one-shot RPC at <base>/rpc.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.basePath, s.handleWebSocket)
	mux.HandleFunc(s.basePath+"/rpc", s.handleRPC)
	return mux
}

// wsConn is one live WebSocket connection. writeMu serializes frame
// writes and guards codec: dispatch goroutines encode responses while the
// read loop may be renegotiating the format.
type wsConn struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
	codec   Codec
}

func (c *wsConn) setCodec(codec Codec) {
	c.writeMu.Lock()
	c.codec = codec
	c.writeMu.Unlock()
}

func (c *wsConn) write(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	op := ws.OpText
	if c.codec.Name() == CodecNameMsgpack {
		op = ws.OpBinary
	}
	return wsutil.WriteServerMessage(c.conn, op, data)
}

// authorized reports whether the request carries the shared token, when one
// is configured.
func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && got == s.authToken {
		return true
	}
	return r.URL.Query().Get("access_token") == s.authToken
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		id:    id.NewConnectionID().String(),
		conn:  conn,
		codec: s.defaultCodec,
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("connection opened", "conn", c.id)
	s.serveConn(r.Context(), c)

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = conn.Close()
	s.logger.Info("connection closed", "conn", c.id)
}

// serveConn reads frames until the connection drops. Request frames are
// handled asynchronously; the connection stays open until each response is
// written, so slow workflows never block other requests on the same
// connection.
func (s *Server) serveConn(ctx context.Context, c *wsConn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			// Pre-negotiation frames may arrive in JSON while the default
			// codec is something else.
			if frame, err = (&JSONCodec{}).Decode(data); err != nil {
				_ = c.write(NewErrorFrame("", ErrCodeBadRequest, "undecodable frame"))
				continue
			}
		}

		switch frame.Type {
		case FrameHello:
			s.handleHello(c, frame)
		case FramePing:
			_ = c.write(&Frame{ID: GenerateFrameID(), Type: FramePong, CorrelID: frame.ID})
		case FrameRequest:
			go s.dispatch(ctx, c, frame)
		default:
			_ = c.write(NewErrorFrame(frame.ID, ErrCodeBadRequest,
				fmt.Sprintf("unexpected frame type %q", frame.Type)))
		}
	}
}

// handleHello negotiates the codec for the rest of the connection.
func (s *Server) handleHello(c *wsConn, frame *Frame) {
	var hello HelloRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &hello); err != nil {
			_ = c.write(NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid hello data"))
			return
		}
	}
	codec := GetCodec(hello.Format)
	c.setCodec(codec)

	resp, err := NewResponseFrame(frame.ID, HelloResponse{
		Format:       codec.Name(),
		ConnectionID: c.id,
	})
	if err != nil {
		_ = c.write(NewErrorFrame(frame.ID, ErrCodeInternal, err.Error()))
		return
	}
	_ = c.write(resp)
}

// dispatch runs one coordinator operation and writes the correlated
// response.
func (s *Server) dispatch(ctx context.Context, c *wsConn, frame *Frame) {
	result := s.coord.HandleMessage(ctx, frame.MsgType, frame.Data)

	resp, err := NewResponseFrame(frame.ID, result)
	if err != nil {
		resp = NewErrorFrame(frame.ID, ErrCodeInternal, err.Error())
	}
	if err := c.write(resp); err != nil {
		s.logger.Warn("response write failed", "conn", c.id, "error", err)
	}
}

// handleRPC serves one-shot requests: a single request frame in, the
// response frame out once the operation resolves.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorFrame("", ErrCodeBadRequest, "invalid frame"))
		return
	}
	if frame.Type != FrameRequest {
		writeJSON(w, http.StatusBadRequest, NewErrorFrame(frame.ID, ErrCodeBadRequest, "expected request frame"))
		return
	}

	result := s.coord.HandleMessage(r.Context(), frame.MsgType, frame.Data)
	resp, err := NewResponseFrame(frame.ID, result)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, NewErrorFrame(frame.ID, ErrCodeInternal, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Broadcast pushes an event frame to every open connection.
func (s *Server) Broadcast(event string, data any) {
	frame, err := NewEventFrame(event, data)
	if err != nil {
		s.logger.Warn("event encode failed", "event", event, "error", err)
		return
	}

	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(frame); err != nil {
			s.logger.Warn("event write failed", "conn", c.id, "error", err)
		}
	}
}

// Hooks integration: the server forwards lifecycle events to listeners.

var (
	_ hooks.Extension         = (*Server)(nil)
	_ hooks.SelectionEvent    = (*Server)(nil)
	_ hooks.StageActive       = (*Server)(nil)
	_ hooks.WorkflowCompleted = (*Server)(nil)
	_ hooks.WorkflowFailed    = (*Server)(nil)
)

// Name implements hooks.Extension.
func (s *Server) Name() string { return "wire-server" }

// OnSelectionEvent implements hooks.SelectionEvent.
func (s *Server) OnSelectionEvent(_ context.Context, eventType string, payload []byte) error {
	s.Broadcast(eventType, json.RawMessage(payload))
	return nil
}

// OnStageActive implements hooks.StageActive.
func (s *Server) OnStageActive(_ context.Context, sessionID string, stage state.Stage) error {
	s.Broadcast("STAGE_ACTIVE", map[string]any{
		"sessionId": sessionID,
		"stage":     stage,
	})
	return nil
}

// OnWorkflowCompleted implements hooks.WorkflowCompleted.
func (s *Server) OnWorkflowCompleted(_ context.Context, sessionID string, preview *state.PreviewData, _ time.Duration) error {
	s.Broadcast("WORKFLOW_COMPLETE", map[string]any{
		"sessionId": sessionID,
		"preview":   preview,
	})
	return nil
}

// OnWorkflowFailed implements hooks.WorkflowFailed.
func (s *Server) OnWorkflowFailed(_ context.Context, sessionID string, err error) error {
	s.Broadcast("WORKFLOW_FAILED", map[string]any{
		"sessionId": sessionID,
		"error":     err.Error(),
	})
	return nil
}
