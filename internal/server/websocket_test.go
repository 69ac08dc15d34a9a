package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/wyoming"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func startWSServer(t *testing.T, m *asr.Manager) *websocket.Conn {
	t.Helper()
	e := echo.New()
	NewWSHandler(m, testLogger()).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/wyoming"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func wsSend(t *testing.T, ws *websocket.Conn, ev *wyoming.Event) {
	t.Helper()
	data, err := ev.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("WriteMessage error: %v", err)
	}
}

func wsRecv(t *testing.T, ws *websocket.Conn) *wyoming.Event {
	t.Helper()
	msgType, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("expected binary message, got %d", msgType)
	}
	ev, err := wyoming.DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent error: %v", err)
	}
	return ev
}

func TestWSHandler_Session(t *testing.T) {
	m := newTestManager(t, "hello from ws")
	ws := startWSServer(t, m)

	wsSend(t, ws, wyoming.Describe{}.ToEvent())
	if ev := wsRecv(t, ws); ev.Type != wyoming.TypeInfo {
		t.Fatalf("expected info, got %s", ev.Type)
	}

	wsSend(t, ws, wyoming.AudioChunk{AudioFormat: mono16k, Audio: make([]byte, 1600)}.ToEvent())
	wsSend(t, ws, wyoming.AudioChunk{AudioFormat: mono16k, Audio: make([]byte, 1600)}.ToEvent())
	wsSend(t, ws, wyoming.AudioStop{}.ToEvent())

	ev := wsRecv(t, ws)
	if ev.Type != wyoming.TypeTranscript || wyoming.TranscriptFromEvent(ev).Text != "hello from ws" {
		t.Errorf("unexpected reply %+v", ev)
	}
}

func TestWSHandler_ProtocolViolation(t *testing.T) {
	m := newTestManager(t, "hello")
	ws := startWSServer(t, m)

	wsSend(t, ws, wyoming.AudioStop{}.ToEvent())
	ev := wsRecv(t, ws)
	if wyoming.ErrorFromEvent(ev).Code != asr.CodeProtocolViolation {
		t.Fatalf("expected protocol-violation, got %+v", ev)
	}

	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close after violation, got %v", err)
	}
}
