package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/orchestra-mcp/chat/config"
	"github.com/orchestra-mcp/chat/providers"
	"github.com/orchestra-mcp/chat/src/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("chat server stopped")
	}
}

func run(cfg *config.SocketConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.Driver == "sqlite" {
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	plugin := providers.NewChatPlugin(cfg, db, db, logger)
	if err := plugin.Activate(ctx); err != nil {
		return err
	}

	app := fiber.New()
	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	plugin.RegisterRoutes(app.Group("/api/chat"))

	srv := &fasthttp.Server{
		Handler:     plugin.Handler(app),
		Name:        "chat",
		IdleTimeout: 2 * cfg.PingInterval,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("ws_path", cfg.Path).Msg("chat server listening")
		errCh <- srv.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := plugin.Deactivate(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("plugin deactivate error")
	}
	return srv.ShutdownWithContext(shutdownCtx)
}
