package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatbot-backend/handler"
	"chatbot-backend/internal/clock"
	"chatbot-backend/internal/integrations/openai"
	"chatbot-backend/internal/integrations/webhook"
	"chatbot-backend/internal/store"
	"chatbot-backend/internal/usecase"
)

// defaultSettings builds the settings snapshot restored by a reset. The
// provider key is seeded from the environment; display strings match the
// reference deployment's Hebrew frontend.
func defaultSettings(apiKey string) store.Settings {
	return store.Settings{
		"webhookUrl":      "https://api.example.com/webhook",
		"openaiApiKey":    apiKey,
		"products":        []any{"מוצר 1", "מוצר 2", "מוצר 3"},
		"primaryColor":    "#2563eb",
		"secondaryColor":  "#6b7280",
		"textColor":       "#1f2937",
		"backgroundColor": "#ffffff",
		"fontFamily":      "system-ui, -apple-system, sans-serif",
		"fontSize":        "14px",
		"welcomeMessage":  "שלום! איך אני יכול לעזור לך היום?",
		"chatTitle":       "צ'אטבוט",
		"chatIcon":        "💬",
		"botName":         "עוזר",
		"userPlaceholder": "הקלד הודעה...",
	}
}

func main() {
	// Best-effort: a missing .env is fine, the environment may already
	// be populated.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	port := envInt("PORT", 5000)
	debug := envBool("DEBUG", false)
	apiKey := os.Getenv("OPENAI_API_KEY")
	maxConvs := envInt("MAX_CONVERSATIONS", 1000)
	convTTL := time.Duration(envInt("CONVERSATION_TTL_MINUTES", 720)) * time.Minute
	openaiTimeout := time.Duration(envInt("OPENAI_TIMEOUT_SECONDS", 60)) * time.Second
	webhookTimeout := time.Duration(envInt("WEBHOOK_TIMEOUT_SECONDS", 30)) * time.Second
	openaiBaseURL := os.Getenv("OPENAI_BASE_URL")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	// ---- Stores ----
	clk := clock.SystemUTC{}
	settings, err := store.NewSettingsStore(defaultSettings(apiKey))
	if err != nil {
		log.Error("failed to create settings store", "err", err)
		os.Exit(1)
	}
	convs, err := store.NewConversationStore(clk,
		store.WithMaxConversations(maxConvs),
		store.WithConversationTTL(convTTL),
	)
	if err != nil {
		log.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	openaiOpts := []openai.Option{openai.WithTimeout(openaiTimeout)}
	if openaiBaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(openaiBaseURL))
	}
	llmClient := openai.NewClient(openaiOpts...)
	webhookClient := webhook.NewClient(webhook.WithTimeout(webhookTimeout))

	// ---- Services ----
	chatService, err := usecase.NewChatService(settings, convs, llmClient)
	if err != nil {
		log.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	leadService, err := usecase.NewLeadService(settings, convs, webhookClient, clk)
	if err != nil {
		log.Error("failed to create lead service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(settings, convs, chatService, leadService, clk, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", port, "debug", debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "err", err)
			os.Exit(1)
		}
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
