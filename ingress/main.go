package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/clinic"
	"github.com/xiaot623/clinic-assistant/internal/config"
	internalhttp "github.com/xiaot623/clinic-assistant/internal/http"
	"github.com/xiaot623/clinic-assistant/internal/hub"
	"github.com/xiaot623/clinic-assistant/internal/logger"
	"github.com/xiaot623/clinic-assistant/internal/metrics"
	"github.com/xiaot623/clinic-assistant/internal/store"
	"github.com/xiaot623/clinic-assistant/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("starting clinic assistant ingress",
		zap.Int("ws_port", cfg.WSPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("clinic_api_url", cfg.ClinicAPIURL))

	collector := metrics.NewCollector()

	// Optional transcript archive
	var (
		db      *store.SQLiteStore
		archive internalhttp.Archive
		wsOpts  = []ws.Option{ws.WithMetrics(collector)}
	)
	if cfg.TranscriptDSN != "" {
		db, err = store.NewSQLiteStore(cfg.TranscriptDSN)
		if err != nil {
			zl.Fatal("failed to open transcript archive", zap.Error(err))
		}
		archive = db
		wsOpts = append(wsOpts, ws.WithArchive(store.NewArchiver(db, zl).ForSession))
		zl.Info("transcript archive enabled", zap.String("dsn", cfg.TranscriptDSN))
	}

	clinicClient := clinic.NewClient(cfg.ClinicAPIURL,
		clinic.WithMetrics(collector),
		clinic.WithHTTPClient(&http.Client{Timeout: cfg.CallTimeout}))

	// The ws server subscribes to session closes, so it is built before the hub runs
	connectionHub := hub.NewHub(zl, collector)
	wsServer := ws.NewServer(cfg, connectionHub, clinicClient, zl, wsOpts...)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go connectionHub.Run(hubCtx)

	// Create WebSocket Echo server
	wsEcho := echo.New()
	wsEcho.HideBanner = true
	wsEcho.HidePort = true
	wsEcho.Use(middleware.Logger())
	wsEcho.Use(middleware.Recover())
	wsEcho.GET("/ws", wsServer.HandleWebSocket)

	// Initialize internal HTTP server
	httpServer := internalhttp.NewServer(connectionHub, wsServer, collector, archive, zl)

	// Start WebSocket server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		if err := wsEcho.Start(addr); err != nil && err != http.ErrServerClosed {
			zl.Fatal("failed to start websocket server", zap.Error(err))
		}
	}()

	// Start internal HTTP server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			zl.Fatal("failed to start internal http server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down ingress")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wsEcho.Shutdown(shutdownCtx); err != nil {
		zl.Warn("websocket server did not shut down gracefully", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("internal http server did not shut down gracefully", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("in-flight turns did not finish", zap.Error(err))
	}
	stopHub()
	if db != nil {
		if err := db.Close(); err != nil {
			zl.Warn("failed to close transcript archive", zap.Error(err))
		}
	}

	zl.Info("ingress stopped")
}
