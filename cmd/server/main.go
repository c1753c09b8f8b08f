package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/rs/cors"

	"roomrelay/backend/internal/auth"
	"roomrelay/backend/internal/broadcast"
	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/database"
	"roomrelay/backend/internal/fanout"
	"roomrelay/backend/internal/handler"
	"roomrelay/backend/internal/hub"
	"roomrelay/backend/internal/metrics"
	"roomrelay/backend/internal/retention"
	"roomrelay/backend/internal/store"
	"roomrelay/backend/internal/ws"

	// Swagger imports
	_ "roomrelay/backend/docs" // This is important for swag to find the generated docs

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Roomrelay API
// @version         1.0
// @description     REST surface of the roomrelay chat relay. Real-time traffic uses the websocket at /ws.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	st := store.NewGormStore(db, log)
	if _, err := st.EnsureDefaultRoom(ctx, cfg.DefaultRoom); err != nil {
		return fmt.Errorf("default room: %w", err)
	}

	m := metrics.New()
	h := hub.NewHub(log)

	publisher, closePublisher, err := newPublisher(ctx, cfg, h, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	router := broadcast.NewRouter(st, h, publisher, m, log)
	scheduler := retention.NewScheduler(st, router, log, retention.WithMetrics(m))
	router.UseRetention(scheduler)
	defer scheduler.Stop()

	// Timers must be armed before any client can post.
	if _, _, err := scheduler.Recover(ctx); err != nil {
		return fmt.Errorf("retention recovery: %w", err)
	}

	admin, err := auth.NewAdmin(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("admin credentials: %w", err)
	}

	wsServer := ws.NewServer(router, h, m, log, ws.Options{
		MaxMessageSize:    cfg.MaxMessageSize,
		RateLimitBurst:    cfg.RateLimitBurst,
		RateLimitInterval: cfg.RateLimitInterval,
		AllowedOrigins:    cfg.Origins(),
	})

	engine := gin.Default()

	// Swagger route
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	engine.GET("/metrics", gin.WrapH(m.Handler()))
	engine.GET("/ws", gin.WrapH(wsServer))

	// API v1 routes
	handler.NewHandler(router, admin, cfg.JWTSecret, log).Register(engine.Group("/api/v1"))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   cfg.Origins(),
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Server is running", "addr", cfg.HTTPAddr, "swagger", "/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wsServer.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	log.Info("Server stopped cleanly")
	return nil
}

// newPublisher picks the fan-out backend: redis when REDIS_URL is set so
// several instances share events, the local hub otherwise.
func newPublisher(ctx context.Context, cfg *config.Config, h *hub.Hub, log *slog.Logger) (fanout.Publisher, func(), error) {
	if cfg.RedisURL == "" {
		return fanout.NewLocal(h), func() {}, nil
	}
	rp, err := fanout.NewRedis(ctx, cfg.RedisURL, h, log)
	if err != nil {
		return nil, nil, fmt.Errorf("redis fan-out: %w", err)
	}
	ready := make(chan struct{})
	go func() {
		if err := rp.Run(ctx, ready); err != nil {
			log.Error("Redis fan-out stopped", "error", err)
		}
	}()
	select {
	case <-ready:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		_ = rp.Close()
		return nil, nil, errors.New("redis fan-out: subscription timed out")
	}
	log.Info("Using redis fan-out", "channel", fanout.DefaultChannel)
	return rp, func() { _ = rp.Close() }, nil
}
