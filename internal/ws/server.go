// Package ws provides WebSocket server functionality for client connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/chat"
	"github.com/xiaot623/clinic-assistant/internal/config"
	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/hub"
	"github.com/xiaot623/clinic-assistant/internal/metrics"
	"github.com/xiaot623/clinic-assistant/internal/protocol"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// ArchiveFunc returns the sink that archives one session's transcript.
type ArchiveFunc func(sessionID string) transcript.Sink

// conversation is the server-side state of one session.
type conversation struct {
	assistant *chat.Assistant
	log       *transcript.Log
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	gateway  chat.Gateway
	archive  ArchiveFunc
	logger   *zap.Logger
	metrics  *metrics.Collector
	upgrader websocket.Upgrader

	mu            sync.Mutex
	conversations map[string]*conversation

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithArchive archives every session's transcript through fn.
func WithArchive(fn ArchiveFunc) Option {
	return func(s *Server) { s.archive = fn }
}

// WithMetrics passes m to every assistant.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new WebSocket server. It registers itself for session
// close notifications, so it must be created before h.Run.
func NewServer(cfg *config.Config, h *hub.Hub, gw chat.Gateway, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		hub:           h,
		gateway:       gw,
		logger:        logger,
		conversations: make(map[string]*conversation),
		ctx:           ctx,
		cancel:        cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browser widgets may be served from any origin
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	h.OnSessionClosed(s.closeSession)
	return s
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	// Create and register connection
	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			break
		}

		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, conn.SessionID, protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if baseMsg.Type == protocol.TypeHello {
		s.handleHello(conn, data)
		return
	}

	// Everything else requires a session
	conv := s.conversation(conn.SessionID)
	if conn.SessionID == "" || conv == nil {
		s.sendError(conn, conn.SessionID, protocol.ErrorCodeSessionRequired, "must send hello first")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeLogin:
		var msg protocol.LoginMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, conn.SessionID, protocol.ErrorCodeInvalidMessage, "invalid login message")
			return
		}
		s.dispatch(conn, func(ctx context.Context) error {
			return conv.assistant.Login(ctx, msg.PatientID)
		})

	case protocol.TypeLogout:
		conv.assistant.Logout(chat.ReasonUser)

	case protocol.TypeMessage:
		var msg protocol.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, conn.SessionID, protocol.ErrorCodeInvalidMessage, "invalid message")
			return
		}
		s.dispatch(conn, func(ctx context.Context) error {
			return conv.assistant.Submit(ctx, msg.Text)
		})

	case protocol.TypeChoice:
		var msg protocol.ChoiceMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.ChoiceID == "" {
			s.sendError(conn, conn.SessionID, protocol.ErrorCodeInvalidMessage, "invalid choice message")
			return
		}
		s.dispatch(conn, func(ctx context.Context) error {
			return conv.assistant.Select(ctx, msg.ChoiceID)
		})

	case protocol.TypeActivity:
		conv.assistant.Touch()

	default:
		s.sendError(conn, conn.SessionID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello handles the hello handshake message.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, conn.SessionID, protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	// Validate API key if configured
	if s.cfg.APIKey != "" && msg.APIKey != s.cfg.APIKey {
		s.sendError(conn, conn.SessionID, protocol.ErrorCodeUnauthorized, "invalid api_key")
		return
	}

	// Generate or use provided session ID
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}

	s.hub.BindSession(conn, sessionID)
	conv := s.attach(sessionID)
	st := conv.assistant.State()

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHelloAck, sessionID),
		LoggedIn:    st.LoggedIn(),
	}
	s.hub.SendJSONToConnection(conn, ack)

	// Replay what the session already shows
	s.hub.SendJSONToConnection(conn, protocol.HistoryMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHistory, sessionID),
		Entries:     conv.log.Entries(),
	})
	if st.LoggedIn() {
		s.hub.SendJSONToConnection(conn, protocol.LoggedInMessage{
			BaseMessage: protocol.NewBase(protocol.TypeLoggedIn, sessionID),
			PatientID:   st.PatientID,
		})
		s.hub.SendJSONToConnection(conn, protocol.PatientMessage{
			BaseMessage: protocol.NewBase(protocol.TypePatient, sessionID),
			Summary:     domain.Summarize(st.Patient),
		})
	}

	s.logger.Info("hello handshake completed",
		zap.String("session_id", sessionID),
		zap.String("conn_id", conn.ID))
}

// dispatch runs a conversation turn off the read pump so pings and activity
// keep flowing while the clinic API answers.
func (s *Server) dispatch(conn *hub.Connection, fn func(ctx context.Context) error) {
	sessionID := conn.SessionID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := fn(s.ctx)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrNotLoggedIn):
			s.sendError(conn, sessionID, protocol.ErrorCodeNotLoggedIn, "log in first")
		case errors.Is(err, chat.ErrUnknownChoice):
			s.sendError(conn, sessionID, protocol.ErrorCodeUnknownChoice, "this option is no longer available")
		default:
			// already shown to the user as an alert
			s.logger.Debug("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

// attach returns the conversation of sessionID, creating it on first use.
func (s *Server) attach(sessionID string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[sessionID]; ok {
		return conv
	}

	log := transcript.NewLog()
	out := &broadcaster{hub: s.hub, sessionID: sessionID, logger: s.logger}
	log.AddSink(out)
	if s.archive != nil {
		log.AddSink(s.archive(sessionID))
	}

	conv := &conversation{
		log: log,
		assistant: chat.New(chat.Config{
			SessionID:   sessionID,
			IdleTimeout: s.cfg.IdleTimeout,
			CallTimeout: s.cfg.CallTimeout,
		}, s.gateway, log, out, s.logger, s.metrics),
	}
	s.conversations[sessionID] = conv
	s.logger.Info("session created", zap.String("session_id", sessionID))
	return conv
}

func (s *Server) conversation(sessionID string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[sessionID]
}

// closeSession drops a session once its last connection is gone.
func (s *Server) closeSession(sessionID string) {
	s.mu.Lock()
	conv, ok := s.conversations[sessionID]
	if !ok || s.hub.HasActiveConnections(sessionID) {
		s.mu.Unlock()
		return
	}
	delete(s.conversations, sessionID)
	s.mu.Unlock()

	conv.assistant.Close()
	s.logger.Info("session closed", zap.String("session_id", sessionID))
}

// Transcript returns the live entries of a session.
func (s *Server) Transcript(sessionID string) ([]transcript.Entry, bool) {
	conv := s.conversation(sessionID)
	if conv == nil {
		return nil, false
	}
	return conv.log.Entries(), true
}

// Notify appends a bot notice to a session's transcript.
func (s *Server) Notify(sessionID, text string) bool {
	conv := s.conversation(sessionID)
	if conv == nil {
		return false
	}
	conv.assistant.Notify(text)
	return true
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Shutdown cancels in-flight turns, closes every session and waits for the
// turns to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	convs := make([]*conversation, 0, len(s.conversations))
	for id, conv := range s.conversations {
		convs = append(convs, conv)
		delete(s.conversations, id)
	}
	s.mu.Unlock()
	for _, conv := range convs {
		conv.assistant.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, sessionID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, sessionID),
		Code:        code,
		Message:     message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}
