package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/silent-echo/signaling/config"
	"github.com/silent-echo/signaling/internal/core"
	"github.com/silent-echo/signaling/internal/handlers"
	"github.com/silent-echo/signaling/internal/middleware"
	"github.com/silent-echo/signaling/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(cfg.LogLevel)

	st, err := store.New(cfg.Redis, cfg.SessionTTL, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing redis mirror")
		_ = st.Close()
	}()
	log.Info("redis connection established")

	hub := handlers.NewHub(log)
	co := core.New(hub, core.WithLifecycle(st), core.WithLogger(log))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Anonymous guest identity (public)
		apiGroup.POST("/auth/guest", handlers.Guest(cfg.JWTSecret))

		// Session metadata lookup (public)
		apiGroup.GET("/sessions/:sessionId", handlers.GetSession(st))
	}

	wsGroup := router.Group("/ws")
	{
		// WebSocket endpoint; the guest token carries the identity
		wsGroup.GET("/connect", middleware.GuestAuth(cfg.JWTSecret), handlers.HandleConnect(co, hub, log))
	}

	log.Info("starting signaling server", "port", cfg.Port, "environment", cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
