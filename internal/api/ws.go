package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"globerun/pkg/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// inboundFrame is what the browser sends: camera pose snapshots plus the
// occasional user action.
type inboundFrame struct {
	Type      string             `json:"type"`
	Pose      model.CameraPose   `json:"pose"`
	ID        string             `json:"id"`
	Direction model.NavDirection `json:"direction"`
}

// stateFrame is pushed to every client when slot/marker/nav state changes.
type stateFrame struct {
	Type    string `json:"type"`
	Slots   any    `json:"slots"`
	Nearest int    `json:"nearest"`
	Marker  any    `json:"marker"`
	Nav     any    `json:"nav"`
}

// WSHandler runs the camera/state stream. The browser sends pose frames at
// render rate; the server answers with state frames only when something
// changed, so an idle camera costs no downstream traffic.
type WSHandler struct {
	viewer   *ViewerHandler
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewWSHandler(viewer *ViewerHandler) *WSHandler {
	return &WSHandler{
		viewer: viewer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The viewer UI is served from this same process.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	slog.Info("Viewer connected", "remote", conn.RemoteAddr().String())

	go h.writePump(client)

	// Initial state so the client renders without waiting for a change.
	h.sendState(client)

	h.readPump(client)
}

func (h *WSHandler) readPump(c *wsClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Websocket read failed", "error", err)
			}
			return
		}

		switch frame.Type {
		case "camera":
			h.viewer.ApplyCamera(frame.Pose)
		case "loaded":
			h.viewer.stitch.SceneLoaded(frame.ID)
			h.viewer.nav.SceneLoaded(frame.ID)
		case "toggle":
			h.viewer.markers.Toggle()
		case "dismiss":
			h.viewer.markers.Dismiss()
		case "advance":
			h.viewer.nav.Advance(frame.Direction)
		default:
			slog.Debug("Ignoring unknown websocket frame", "type", frame.Type)
		}
	}
}

func (h *WSHandler) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// BroadcastState pushes the current slot/marker/nav state to every client.
// Wired to the engines' change callbacks.
func (h *WSHandler) BroadcastState() {
	msg, err := h.stateMessage()
	if err != nil {
		slog.Error("Failed to encode state frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow consumer; it will resync from the next frame.
		}
	}
}

func (h *WSHandler) sendState(c *wsClient) {
	msg, err := h.stateMessage()
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *WSHandler) stateMessage() ([]byte, error) {
	return json.Marshal(stateFrame{
		Type:    "state",
		Slots:   h.viewer.stitch.Slots(),
		Nearest: h.viewer.stitch.Nearest(),
		Marker:  h.viewer.markers.State(),
		Nav:     h.viewer.nav.Status(),
	})
}

// ClientCount reports connected viewers.
func (h *WSHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
