package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/voicebank-gateway/internal/backend/obp"
	"github.com/tjfontaine/voicebank-gateway/internal/backend/sealion"
	"github.com/tjfontaine/voicebank-gateway/internal/config"
	"github.com/tjfontaine/voicebank-gateway/internal/conversation"
	"github.com/tjfontaine/voicebank-gateway/internal/dispatch"
	"github.com/tjfontaine/voicebank-gateway/internal/frontdoor"
	"github.com/tjfontaine/voicebank-gateway/internal/prompt"
	"github.com/tjfontaine/voicebank-gateway/internal/server"
	"github.com/tjfontaine/voicebank-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/voicebank-gateway/internal/telemetry"
	"github.com/tjfontaine/voicebank-gateway/internal/tokens"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("voicebank-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	loopOpts := []conversation.Option{
		conversation.WithTokenBudget(cfg.Chat.TokenBudget, tokens.NewCounter()),
	}

	if cfg.Storage.Path != "" {
		store, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open turn store: %v", err)
		}
		defer store.Close()
		loopOpts = append(loopOpts, conversation.WithRecorder(store))
		logger.Info("turn audit store enabled", slog.String("path", cfg.Storage.Path))
	}

	bankClient := obp.NewClient(cfg.Bank.BaseURL)
	sessionToken := directLogin(cfg, bankClient, logger)

	dispatcher := dispatch.New(bankClient, cfg, sessionToken, logger)
	prompts := prompt.NewBuilder(cfg)
	model := sealion.NewProvider(cfg.SeaLion)

	loop := conversation.NewLoop(model, prompts, dispatcher, cfg.Chat.MaxTurns, logger, loopOpts...)

	srv := server.New(cfg.Server.Port, logger)
	chat := frontdoor.NewHandler(loop)
	srv.Router.Post("/api/chat", chat.HandleChat)
	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// directLogin obtains a session token at startup. The banking sandbox is
// flaky enough that a failure here only disables dispatch until a turn
// supplies its own token, so we warn and keep serving chat.
func directLogin(cfg *config.Config, bankClient *obp.Client, logger *slog.Logger) string {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	token, err := bankClient.DirectLogin(ctx, cfg.Bank.Username, cfg.Bank.Password, cfg.Bank.ConsumerKey)
	if err != nil {
		logger.Warn("direct login failed, continuing without session token",
			slog.String("error", err.Error()))
		return ""
	}
	logger.Info("bank session established")
	return token
}
