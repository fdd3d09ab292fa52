package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 32
)

// Room names for live channels.
func StudentRoom(id string) string { return "student:" + id }
func SessionRoom(id string) string { return "session:" + id }

// WSHub manages WebSocket connections and room-based message delivery.
// Single instance only; each connection belongs to exactly one room.
type WSHub struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*WSConn // room -> connID -> conn
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// WSConn is one subscriber. Send is drained by the connection's write pump.
type WSConn struct {
	ID   string
	Room string
	Send chan []byte
}

// WSMessage is the payload sent over WebSocket.
type WSMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewWSHub creates a hub accepting upgrades from the given origins ("*" allows all).
func NewWSHub(allowedOrigins []string, logger *slog.Logger) *WSHub {
	h := &WSHub{
		rooms:  make(map[string]map[string]*WSConn),
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Upgrader exposes the hub's upgrader for streams that are not rooms.
func (h *WSHub) Upgrader() *websocket.Upgrader { return &h.upgrader }

// NewConn creates an unattached connection.
func NewConn(room string) *WSConn {
	return &WSConn{ID: uuid.NewString(), Room: room, Send: make(chan []byte, wsSendBuffer)}
}

// Join adds a connection to its room.
func (h *WSHub) Join(conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conn.Room] == nil {
		h.rooms[conn.Room] = make(map[string]*WSConn)
	}
	h.rooms[conn.Room][conn.ID] = conn
}

// Leave removes a connection from its room and closes its send channel.
// Safe to call more than once.
func (h *WSHub) Leave(conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[conn.Room]
	if !ok {
		return
	}
	if _, ok := conns[conn.ID]; !ok {
		return
	}
	delete(conns, conn.ID)
	close(conn.Send)
	if len(conns) == 0 {
		delete(h.rooms, conn.Room)
	}
}

// Publish sends a message to all connections in a room. Slow consumers drop messages.
func (h *WSHub) Publish(room string, event string, data any) {
	payload, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		h.logger.Error("ws marshal error", "error", err, "room", room, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.rooms[room] {
		select {
		case conn.Send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "conn_id", conn.ID, "room", room)
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *WSHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, conns := range h.rooms {
		count += len(conns)
	}
	return count
}

// RoomCount returns the number of active rooms.
func (h *WSHub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Serve upgrades the request and streams room messages until the client
// disconnects or ctx ends. Inbound messages are ignored.
func (h *WSHub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, room string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err, "room", room)
		return
	}
	conn := NewConn(room)
	h.Join(conn)
	h.logger.Debug("ws subscriber joined", "conn_id", conn.ID, "room", room)

	go h.readPump(ws, conn)
	h.writePump(ctx, ws, conn)
}

func (h *WSHub) readPump(ws *websocket.Conn, conn *WSConn) {
	defer h.Leave(conn)
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) writePump(ctx context.Context, ws *websocket.Conn, conn *WSConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.Leave(conn)
		_ = ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case msg, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown closes all connections gracefully.
func (h *WSHub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, conns := range h.rooms {
		for _, conn := range conns {
			close(conn.Send)
		}
		delete(h.rooms, room)
	}
}
