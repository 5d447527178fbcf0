package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/elder-companion/backend/internal/config"
	"github.com/zhouzirui/elder-companion/backend/internal/handler"
	"github.com/zhouzirui/elder-companion/backend/internal/model/persona"
	"github.com/zhouzirui/elder-companion/backend/internal/service/chat"
	"github.com/zhouzirui/elder-companion/backend/internal/service/completion"
	"github.com/zhouzirui/elder-companion/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	if envErr != nil {
		zl.Info("no .env file loaded, using system environment only", zap.Error(envErr))
	}
	if !cfg.LLM.Enabled() {
		zl.Warn("SILICONFLOW_API_KEY 未配置，所有回复都将是致歉消息")
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	client := completion.NewClient(cfg.LLM.Completion(), zl)
	zl.Info("completion client ready",
		zap.String("base_url", cfg.LLM.BaseURL),
		zap.String("model", client.Model()))

	chatService := chat.NewService(personaStore,
		func(p persona.Persona) chat.Completer { return client.ForPersona(p) },
		chat.ServiceConfig{
			IdleTTL:           cfg.Session.IdleTTL,
			CompletionTimeout: cfg.LLM.Timeout,
		},
		zl)
	defer chatService.Close()

	if cfg.Session.IdleTTL > 0 {
		sweeper, err := chat.NewSweeper(chatService, cfg.Session.SweepSchedule, zl)
		if err != nil {
			zl.Fatal("failed to schedule session sweeper", zap.Error(err))
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	router := handler.NewRouter(personaStore, chatService, cfg.Server.AllowedOrigins, zl)

	startServer(ctx, cfg.Server, router, zl)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zl *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zl.Info("elder companion backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zl.Error("server error", zap.Error(err))
		return
	}
	zl.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
