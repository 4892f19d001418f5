package server_test

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlay/whisperbridge/internal/engine"
)

type socketFrame struct {
	Type     string `json:"type"`
	Session  string `json:"session"`
	Text     string `json:"text"`
	Segments int    `json:"segments"`
	Final    bool   `json:"final"`
	Error    string `json:"error"`
}

func dialSocket(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/transcribe" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) socketFrame {
	t.Helper()
	var frame socketFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func sendAudio(t *testing.T, conn *websocket.Conn, payload []byte) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("send audio: %v", err)
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"event":%q}`, event))); err != nil {
		t.Fatalf("send event %s: %v", event, err)
	}
}

func TestSocketTranscribe(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSocket(t, env, "")

	// One second of audio split across two frames.
	second := make([]byte, 2*engine.SampleRate)
	sendAudio(t, conn, second[:len(second)/2])
	sendAudio(t, conn, second[len(second)/2:])
	sendEvent(t, conn, "flush")

	first := readFrame(t, conn)
	if first.Type != "result" {
		t.Fatalf("frame type = %q, want result (%+v)", first.Type, first)
	}
	if first.Session == "" {
		t.Fatal("result frame carries no session id")
	}
	if first.Segments != 1 {
		t.Fatalf("segments = %d, want 1", first.Segments)
	}
	if !first.Final {
		t.Fatal("result frame should be final")
	}
	if !strings.Contains(first.Text, testModelFile) {
		t.Fatalf("text %q does not mention the model", first.Text)
	}

	// The buffer resets after a flush, so the next window stands alone.
	sendAudio(t, conn, second)
	sendEvent(t, conn, "flush")
	next := readFrame(t, conn)
	if next.Session != first.Session {
		t.Fatalf("session changed mid-stream: %q then %q", first.Session, next.Session)
	}
	if next.Segments != 1 {
		t.Fatalf("segments after reset = %d, want 1", next.Segments)
	}

	sendEvent(t, conn, "close")
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to end the session")
	}

	// Both flushes land in history under the websocket source.
	histResp := env.do(t, http.MethodGet, "/v1/history?limit=10", nil)
	var histBody struct {
		Records []struct {
			Session string `json:"session"`
			Source  string `json:"source"`
		} `json:"records"`
	}
	decodeBody(t, histResp, &histBody)
	if len(histBody.Records) != 2 {
		t.Fatalf("history records = %d, want 2", len(histBody.Records))
	}
	for _, rec := range histBody.Records {
		if rec.Source != "websocket" {
			t.Fatalf("history source = %q, want websocket", rec.Source)
		}
		if rec.Session != first.Session {
			t.Fatalf("history session = %q, want %q", rec.Session, first.Session)
		}
	}
}

func TestSocketExplicitModelPath(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSocket(t, env, "?"+url.Values{"model_path": {env.modelPath}}.Encode())

	sendAudio(t, conn, make([]byte, 2*engine.SampleRate))
	sendEvent(t, conn, "flush")

	frame := readFrame(t, conn)
	if frame.Type != "result" {
		t.Fatalf("frame type = %q, want result (%+v)", frame.Type, frame)
	}
}

func TestSocketFlushWithoutAudio(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSocket(t, env, "")

	sendEvent(t, conn, "flush")
	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want error (%+v)", frame.Type, frame)
	}
}

func TestSocketUnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSocket(t, env, "")

	sendEvent(t, conn, "rewind")
	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want error (%+v)", frame.Type, frame)
	}

	// The session survives an unknown event.
	sendAudio(t, conn, make([]byte, 2*engine.SampleRate))
	sendEvent(t, conn, "flush")
	result := readFrame(t, conn)
	if result.Type != "result" {
		t.Fatalf("frame type = %q, want result (%+v)", result.Type, result)
	}
}

func TestSocketBadModel(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSocket(t, env, "?model_path=/nonexistent/model.bin")

	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want error (%+v)", frame.Type, frame)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to end the session")
	}
}
