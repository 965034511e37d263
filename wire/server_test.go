package wire_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/blockweave/blockweave/coordinator"
	"github.com/blockweave/blockweave/remote"
	"github.com/blockweave/blockweave/state"
	"github.com/blockweave/blockweave/store/memory"
	"github.com/blockweave/blockweave/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a wire server over a coordinator whose remote stub
// answers page analysis.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remote.AnalyzePageResult{
			Success: true,
			Title:   "Example",
			Blocks:  []remote.PageBlock{{Index: 0, Name: "hero"}},
		})
	}))
	t.Cleanup(stub.Close)

	store := memory.New()
	store.SetConfig(context.Background(), &state.Config{
		RepositoryRef: "org/site",
		ContentOrg:    "org",
		ContentSite:   "site",
	})

	coord := coordinator.New(store, remote.New(stub.URL),
		coordinator.WithLogger(testLogger()))
	srv := httptest.NewServer(wire.NewServer(coord, wire.WithLogger(testLogger())).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestFrameCodecRoundTrip(t *testing.T) {
	frame, err := wire.NewRequestFrame("ANALYZE_PAGE", map[string]string{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}

	for _, codec := range []wire.Codec{&wire.JSONCodec{}, &wire.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(frame)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.ID != frame.ID || got.Type != frame.Type || got.MsgType != frame.MsgType {
				t.Errorf("round trip mangled frame: %+v", got)
			}
		})
	}
}

func TestGetCodecDefaultsToJSON(t *testing.T) {
	if wire.GetCodec("").Name() != wire.CodecNameJSON {
		t.Error("empty name should default to json")
	}
	if wire.GetCodec("protobuf").Name() != wire.CodecNameJSON {
		t.Error("unknown name should default to json")
	}
	if wire.GetCodec("msgpack").Name() != wire.CodecNameMsgpack {
		t.Error("msgpack not selectable")
	}
}

func postFrame(t *testing.T, url string, frame *wire.Frame) *wire.Frame {
	t.Helper()
	body, _ := json.Marshal(frame)
	resp, err := http.Post(url+"/wire/rpc", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out wire.Frame
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &out
}

func TestRPCRequestResponse(t *testing.T) {
	srv := newTestServer(t)

	frame, _ := wire.NewRequestFrame(coordinator.TypeAnalyzePage, map[string]string{"url": "https://example.com"})
	out := postFrame(t, srv.URL, frame)

	if out.Type != wire.FrameResponse {
		t.Fatalf("type = %q", out.Type)
	}
	if out.CorrelID != frame.ID {
		t.Errorf("correl id = %q, want %q", out.CorrelID, frame.ID)
	}

	var result coordinator.Response
	if err := json.Unmarshal(out.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Errorf("operation failed: %s", result.Error)
	}
}

func TestRPCUnknownMessageType(t *testing.T) {
	srv := newTestServer(t)

	frame, _ := wire.NewRequestFrame("NOT_A_THING", nil)
	out := postFrame(t, srv.URL, frame)

	var result coordinator.Response
	if err := json.Unmarshal(out.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Success || result.Error != "Unknown message type" {
		t.Errorf("result = %+v", result)
	}
}

func TestRPCRejectsNonRequestFrames(t *testing.T) {
	srv := newTestServer(t)

	out := postFrame(t, srv.URL, &wire.Frame{ID: "x", Type: wire.FrameEvent})
	if out.Type != wire.FrameErr || out.Error == nil || out.Error.Code != wire.ErrCodeBadRequest {
		t.Errorf("frame = %+v", out)
	}
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/wire"
}

func TestWebSocketRequestResponse(t *testing.T) {
	srv := newTestServer(t)

	conn, _, _, err := ws.Dial(context.Background(), wsURL(srv.URL))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	codec := &wire.JSONCodec{}

	// Hello negotiation.
	hello := &wire.Frame{ID: "h1", Type: wire.FrameHello}
	raw, _ := codec.Encode(hello)
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read hello response: %v", err)
	}
	helloResp, err := codec.Decode(data)
	if err != nil || helloResp.CorrelID != "h1" {
		t.Fatalf("hello response = %+v, err %v", helloResp, err)
	}
	var negotiated wire.HelloResponse
	json.Unmarshal(helloResp.Data, &negotiated)
	if negotiated.Format != wire.CodecNameJSON || negotiated.ConnectionID == "" {
		t.Errorf("negotiated = %+v", negotiated)
	}

	// Request/response.
	req, _ := wire.NewRequestFrame(coordinator.TypeAnalyzePage, map[string]string{"url": "https://example.com"})
	raw, _ = codec.Encode(req)
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}
	data, err = wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != wire.FrameResponse || resp.CorrelID != req.ID {
		t.Errorf("response = %+v", resp)
	}
}

func TestWebSocketMsgpackNegotiation(t *testing.T) {
	srv := newTestServer(t)

	conn, _, _, err := ws.Dial(context.Background(), wsURL(srv.URL))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	jsonCodec := &wire.JSONCodec{}
	mpCodec := &wire.MsgpackCodec{}

	helloData, _ := json.Marshal(wire.HelloRequest{Format: wire.CodecNameMsgpack})
	hello := &wire.Frame{ID: "h1", Type: wire.FrameHello, Data: helloData}
	raw, _ := jsonCodec.Encode(hello)
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	// The response already arrives in the negotiated codec.
	data, op, err := wsutil.ReadServerData(conn)
	if err != nil {
		t.Fatalf("read hello response: %v", err)
	}
	if op != ws.OpBinary {
		t.Errorf("opcode = %v, want binary for msgpack", op)
	}
	resp, err := mpCodec.Decode(data)
	if err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if resp.CorrelID != "h1" {
		t.Errorf("correl = %q", resp.CorrelID)
	}

	// Subsequent requests travel as msgpack both ways.
	req, _ := wire.NewRequestFrame(coordinator.TypeAnalyzePage, map[string]string{"url": "https://example.com"})
	raw, _ = mpCodec.Encode(req)
	if err := wsutil.WriteClientBinary(conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}
	data, _, err = wsutil.ReadServerData(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	out, err := mpCodec.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CorrelID != req.ID {
		t.Errorf("correl = %q, want %q", out.CorrelID, req.ID)
	}
}

// A hello may renegotiate the codec while an earlier request is still in
// flight on another goroutine. The late response must come out whole, in
// the newly negotiated format.
func TestWebSocketHelloDuringInflightRequest(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(remote.AnalyzePageResult{
			Success: true,
			Title:   "Example",
			Blocks:  []remote.PageBlock{{Index: 0, Name: "hero"}},
		})
	}))
	defer stub.Close()

	store := memory.New()
	store.SetConfig(context.Background(), &state.Config{
		RepositoryRef: "org/site",
		ContentOrg:    "org",
		ContentSite:   "site",
	})
	coord := coordinator.New(store, remote.New(stub.URL),
		coordinator.WithLogger(testLogger()))
	srv := httptest.NewServer(wire.NewServer(coord, wire.WithLogger(testLogger())).Handler())
	defer srv.Close()

	conn, _, _, err := ws.Dial(context.Background(), wsURL(srv.URL))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	jsonCodec := &wire.JSONCodec{}
	mpCodec := &wire.MsgpackCodec{}

	req, _ := wire.NewRequestFrame(coordinator.TypeAnalyzePage, map[string]string{"url": "https://example.com"})
	raw, _ := jsonCodec.Encode(req)
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}

	helloData, _ := json.Marshal(wire.HelloRequest{Format: wire.CodecNameMsgpack})
	raw, _ = jsonCodec.Encode(&wire.Frame{ID: "h1", Type: wire.FrameHello, Data: helloData})
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	seen := map[string]*wire.Frame{}
	for len(seen) < 2 {
		data, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame *wire.Frame
		if op == ws.OpBinary {
			frame, err = mpCodec.Decode(data)
		} else {
			frame, err = jsonCodec.Decode(data)
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		seen[frame.CorrelID] = frame
	}

	if seen["h1"] == nil || seen["h1"].Type != wire.FrameResponse {
		t.Errorf("hello response = %+v", seen["h1"])
	}
	late := seen[req.ID]
	if late == nil || late.Type != wire.FrameResponse {
		t.Fatalf("request response = %+v", late)
	}
	var result coordinator.Response
	if err := json.Unmarshal(late.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Errorf("operation failed: %s", result.Error)
	}
}

func TestAuthTokenRequired(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remote.AnalyzePageResult{Success: true})
	}))
	defer stub.Close()

	store := memory.New()
	store.SetConfig(context.Background(), &state.Config{
		RepositoryRef: "org/site",
		ContentOrg:    "org",
		ContentSite:   "site",
	})
	coord := coordinator.New(store, remote.New(stub.URL),
		coordinator.WithLogger(testLogger()))
	srv := httptest.NewServer(wire.NewServer(coord,
		wire.WithLogger(testLogger()),
		wire.WithAuthToken("s3cret")).Handler())
	defer srv.Close()

	frame, _ := wire.NewRequestFrame(coordinator.TypeAnalyzePage, map[string]string{"url": "https://example.com"})
	body, _ := json.Marshal(frame)

	// Without the token.
	resp, err := http.Post(srv.URL+"/wire/rpc", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	// With the bearer token.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/wire/rpc", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	// WebSocket dial with the query-parameter form.
	conn, _, _, err := ws.Dial(context.Background(), wsURL(srv.URL)+"?access_token=s3cret")
	if err != nil {
		t.Fatalf("authorized dial: %v", err)
	}
	conn.Close()

	if _, _, _, err := ws.Dial(context.Background(), wsURL(srv.URL)); err == nil {
		t.Error("unauthorized dial should fail")
	}
}

func TestWebSocketPingPong(t *testing.T) {
	srv := newTestServer(t)

	conn, _, _, err := ws.Dial(context.Background(), wsURL(srv.URL))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	codec := &wire.JSONCodec{}
	raw, _ := codec.Encode(&wire.Frame{ID: "p1", Type: wire.FramePing})
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	pong, _ := codec.Decode(data)
	if pong.Type != wire.FramePong || pong.CorrelID != "p1" {
		t.Errorf("pong = %+v", pong)
	}
}
