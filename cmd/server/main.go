package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmuslimabdulj/sketchrelay/internal/config"
	httpHandler "github.com/mmuslimabdulj/sketchrelay/internal/delivery/http"
	"github.com/mmuslimabdulj/sketchrelay/internal/delivery/ws"
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
	"github.com/mmuslimabdulj/sketchrelay/internal/mirror"
	"github.com/mmuslimabdulj/sketchrelay/internal/usecase"
)

func main() {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.InitLogger(logger.DefaultLogConfig())
		logger.NewLogger("server").Fatalf("Config error: %v", err)
	}
	logger.InitLogger(cfg.LogConfig())
	log := logger.NewLogger("server")

	hub := ws.NewHub(hubOptions(cfg), logger.NewLogger("hub"))
	hub.SetNameSuggester(usecase.NewNameSuggester())

	// Event mirror is optional; the relay keeps working without it
	if cfg.NatsURL != "" {
		m, closeMirror, err := mirror.Connect(cfg.NatsURL, cfg.NatsSubjectPrefix, logger.NewLogger("mirror"))
		if err != nil {
			log.Warnf("NATS mirror disabled: %v", err)
		} else {
			defer closeMirror()
			hub.SetEventSink(m)
			log.Infof("Mirroring events to NATS under %q", cfg.NatsSubjectPrefix)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	handler := httpHandler.NewHandler(hub, cfg, logger.NewLogger("http"))

	// Create server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Drawing relay running at http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), domain.ShutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Hijacked websockets are not tracked by Shutdown; stopping the hub closes them
	stop()
	<-hubDone

	log.Info("Server exited gracefully")
}

func hubOptions(cfg *config.Config) ws.Options {
	opts := ws.DefaultOptions()
	opts.MaxUsernameLength = cfg.MaxUsernameLength
	opts.MaxPointsPerEvent = cfg.MaxPointsPerEvent
	opts.UsernamePolicy = cfg.UsernamePolicy
	opts.DrawRate = cfg.DrawRate
	opts.DrawBurst = cfg.DrawBurst
	opts.SendBufferSize = cfg.SendBufferSize
	opts.MaxMessageSize = int64(cfg.MaxMessageSize)
	return opts
}
