// Package wire implements the coordinator's message transport: a frame
// envelope over WebSocket (primary) and one-shot HTTP RPC, with codec
// negotiation between JSON and MessagePack. Handlers run asynchronously;
// the transport keeps the response channel open until each request
// resolves.
package wire

import (
	"encoding/json"
	"time"

	"github.com/blockweave/blockweave/id"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
	FrameHello    FrameType = "hello"
)

// Frame is the message envelope. Every message on the wire is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// MsgType names the coordinator operation for request frames
	// (e.g., "GENERATE_BLOCK").
	MsgType string `json:"msg_type,omitempty" msgpack:"msg_type,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Data carries the operation-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Event names the pushed event for event frames.
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in a response or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// Well-known error codes.
const (
	ErrCodeBadRequest = 400
	ErrCodeNotFound   = 404
	ErrCodeInternal   = 500
)

// HelloRequest opens a connection and negotiates the frame format.
type HelloRequest struct {
	Format string `json:"format,omitempty" msgpack:"format,omitempty"`
}

// HelloResponse confirms the negotiated format and session.
type HelloResponse struct {
	Format       string `json:"format" msgpack:"format"`
	ConnectionID string `json:"connection_id" msgpack:"connection_id"`
}

// GenerateFrameID returns a new unique frame ID.
func GenerateFrameID() string {
	return id.NewEventID().String()
}

// NewRequestFrame creates a request frame for a coordinator operation.
func NewRequestFrame(msgType string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameRequest,
		MsgType:   msgType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       GenerateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates a pushed event frame.
func NewEventFrame(event string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameEvent,
		Event:     event,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}
