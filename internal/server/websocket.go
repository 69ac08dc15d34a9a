package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/wyoming"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 17 * 1024 * 1024
	sendBufferSize = 16
)

var errConnClosed = errors.New("websocket connection closed")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler carries Wyoming events over a websocket, one encoded event per
// binary message.
type WSHandler struct {
	manager *asr.Manager
	log     *slog.Logger
}

func NewWSHandler(manager *asr.Manager, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		manager: manager,
		log:     log.With("component", "wyoming_ws"),
	}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/wyoming", h.Handle)
}

func (h *WSHandler) Handle(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := newWSConn(ws, h.log)
	sess := h.manager.NewSession(c.RealIP(), TransportWebSocket)
	defer h.manager.Remove(sess.ID())

	ctx := c.Request().Context()
	go conn.writePump()

	err = serveEvents(ctx, sess, conn.next, conn.send)
	switch {
	case err == nil:
	case errors.Is(err, asr.ErrProtocolViolation):
		h.log.Warn("closing websocket after protocol violation", "session_id", sess.ID(), "error", err)
	default:
		h.log.Debug("websocket session ended", "session_id", sess.ID(), "error", err)
	}

	conn.Close()
	return nil
}

type wsConn struct {
	ws     *websocket.Conn
	log    *slog.Logger
	out    chan []byte
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newWSConn(ws *websocket.Conn, log *slog.Logger) *wsConn {
	c := &wsConn{
		ws:     ws,
		log:    log,
		out:    make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

func (c *wsConn) next() (*wyoming.Event, error) {
	for {
		msgType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read error", "error", err)
			}
			return nil, err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		return wyoming.DecodeEvent(message)
	}
}

// send blocks until the write pump accepts the event; replies are never
// dropped.
func (c *wsConn) send(ev *wyoming.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return errConnClosed
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.exited)
	}()

	for {
		select {
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.log.Error("websocket write error", "error", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Close flushes queued replies, sends a close frame and releases the socket.
func (c *wsConn) Close() {
	c.shutdown()
	select {
	case <-c.exited:
	case <-time.After(writeWait):
	}
	_ = c.ws.Close()
}
