// Package http provides the internal HTTP server for ingress.
package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/hub"
	"github.com/xiaot623/clinic-assistant/internal/metrics"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// Sessions is the view of live conversations the internal API needs.
type Sessions interface {
	Transcript(sessionID string) ([]transcript.Entry, bool)
	Notify(sessionID, text string) bool
	SessionCount() int
}

// Archive reads archived transcripts.
type Archive interface {
	ListEntries(ctx context.Context, sessionID string) ([]transcript.Entry, error)
}

// Server is the internal HTTP server for ingress.
type Server struct {
	echo     *echo.Echo
	hub      *hub.Hub
	sessions Sessions
	archive  Archive
	logger   *zap.Logger
}

// NewServer creates a new internal HTTP server. m and archive may be nil.
func NewServer(h *hub.Hub, sessions Sessions, m *metrics.Collector, archive Archive, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		hub:      h,
		sessions: sessions,
		archive:  archive,
		logger:   logger,
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	e.POST("/internal/notify", s.handleNotify)
	e.GET("/internal/sessions/:session_id/transcript", s.handleTranscript)
	e.GET("/internal/sessions/:session_id/archive", s.handleArchive)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"connections":   s.hub.GetConnectionCount(),
		"sessions":      s.hub.GetSessionCount(),
		"conversations": s.sessions.SessionCount(),
	})
}

// NotifyRequest represents the request body for POST /internal/notify.
type NotifyRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// NotifyResponse represents the response for POST /internal/notify.
type NotifyResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// handleNotify appends an operator notice to a session's transcript.
func (s *Server) handleNotify(c echo.Context) error {
	var req NotifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	if !s.sessions.Notify(req.SessionID, req.Text) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	delivered := s.hub.HasActiveConnections(req.SessionID)
	s.logger.Info("notice appended",
		zap.String("session_id", req.SessionID),
		zap.Bool("delivered", delivered))

	return c.JSON(http.StatusOK, NotifyResponse{
		OK:        true,
		Delivered: delivered,
	})
}

// TranscriptResponse lists the entries of one session.
type TranscriptResponse struct {
	SessionID string             `json:"session_id"`
	Entries   []transcript.Entry `json:"entries"`
}

func (s *Server) handleTranscript(c echo.Context) error {
	sessionID := c.Param("session_id")
	entries, ok := s.sessions.Transcript(sessionID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, TranscriptResponse{SessionID: sessionID, Entries: entries})
}

func (s *Server) handleArchive(c echo.Context) error {
	if s.archive == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "archive disabled"})
	}

	sessionID := c.Param("session_id")
	entries, err := s.archive.ListEntries(c.Request().Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to read archive", zap.String("session_id", sessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read archive"})
	}
	return c.JSON(http.StatusOK, TranscriptResponse{SessionID: sessionID, Entries: entries})
}
