// Package hub provides connection management for WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/metrics"
)

var (
	// ErrBufferFull is returned when the send buffer is full.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned for sends to an unregistered connection.
	ErrConnectionClosed = errors.New("connection closed")
)

const sendBufferSize = 256

// Connection represents a single WebSocket connection.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	mu     sync.Mutex // serializes writes to Conn
	sendMu sync.Mutex // guards closed and the close of Send
	closed bool
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for sending to specific session
	broadcast chan *SessionMessage

	// done is closed when Run returns
	done chan struct{}

	onSessionClosed func(sessionID string)
	logger          *zap.Logger
	metrics         *metrics.Collector

	mu sync.RWMutex
}

// SessionMessage is used to broadcast a message to a session.
type SessionMessage struct {
	SessionID string
	Data      []byte
}

// NewHub creates a new Hub. logger and m may be nil.
func NewHub(logger *zap.Logger, m *metrics.Collector) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *SessionMessage, 256),
		done:        make(chan struct{}),
		logger:      logger,
		metrics:     m,
	}
}

// OnSessionClosed sets fn to run, on its own goroutine, when the last
// connection of a session goes away. It must be called before Run.
func (h *Hub) OnSessionClosed(fn func(sessionID string)) {
	h.onSessionClosed = fn
}

// Run starts the hub's main loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.SessionID != "" {
				h.addToSession(conn.SessionID, conn.ID)
			}
			h.updateGauges()
			h.mu.Unlock()
			h.logger.Debug("connection registered",
				zap.String("conn_id", conn.ID),
				zap.String("session_id", conn.SessionID))

		case conn := <-h.unregister:
			h.mu.Lock()
			var emptied string
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if conn.SessionID != "" && h.removeFromSession(conn.SessionID, conn.ID) {
					emptied = conn.SessionID
				}
				conn.closeSend()
			}
			h.updateGauges()
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
			if emptied != "" {
				h.sessionClosed(emptied)
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			if connIDs, ok := h.sessions[msg.SessionID]; ok {
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						if err := conn.trySend(msg.Data); errors.Is(err, ErrBufferFull) {
							h.logger.Warn("connection buffer full, closing", zap.String("conn_id", connID))
							go h.Unregister(conn)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, sendBufferSize),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BindSession binds a connection to a session.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	var emptied string
	// Remove from old session if any
	if conn.SessionID != "" && conn.SessionID != sessionID && h.removeFromSession(conn.SessionID, conn.ID) {
		emptied = conn.SessionID
	}
	conn.SessionID = sessionID
	h.addToSession(sessionID, conn.ID)
	h.updateGauges()
	h.mu.Unlock()

	if emptied != "" {
		h.sessionClosed(emptied)
	}
}

// Broadcast sends a message to all connections of a session.
func (h *Hub) Broadcast(sessionID string, data []byte) {
	select {
	case h.broadcast <- &SessionMessage{SessionID: sessionID, Data: data}:
	case <-h.done:
	}
}

// BroadcastJSON sends a JSON message to all connections of a session.
func (h *Hub) BroadcastJSON(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(sessionID, data)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	return conn.trySend(data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GetSessionCount returns the number of sessions with a connection.
func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HasActiveConnections checks if a session has any active connections.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connIDs, ok := h.sessions[sessionID]
	return ok && len(connIDs) > 0
}

// addToSession must be called with h.mu held.
func (h *Hub) addToSession(sessionID, connID string) {
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][connID] = true
}

// removeFromSession must be called with h.mu held. It reports whether the
// session has no connections left.
func (h *Hub) removeFromSession(sessionID, connID string) bool {
	conns := h.sessions[sessionID]
	if conns == nil {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(h.sessions, sessionID)
		return true
	}
	return false
}

// updateGauges must be called with h.mu held.
func (h *Hub) updateGauges() {
	if h.metrics == nil {
		return
	}
	h.metrics.ActiveConnections.Set(float64(len(h.connections)))
	h.metrics.ActiveSessions.Set(float64(len(h.sessions)))
}

func (h *Hub) sessionClosed(sessionID string) {
	h.logger.Debug("session has no connections", zap.String("session_id", sessionID))
	if h.onSessionClosed != nil {
		go h.onSessionClosed(sessionID)
	}
}

func (c *Connection) trySend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
