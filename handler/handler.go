// Package handler is the HTTP transport for the chatbot backend.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chatbot-backend/internal/clock"
	"chatbot-backend/internal/store"
	"chatbot-backend/internal/usecase"
)

const maxBodyBytes = 1 << 20

// ChatSender relays one user message and returns the provider reply.
type ChatSender interface {
	Send(ctx context.Context, in usecase.SendInput) (usecase.SendOutput, error)
}

// LeadSubmitter forwards a lead to the configured webhook.
type LeadSubmitter interface {
	Submit(ctx context.Context, lead map[string]any) (usecase.SubmitOutput, error)
}

// SettingsAPI is the settings-store surface the handler exposes over HTTP.
type SettingsAPI interface {
	Get() store.Settings
	Update(partial store.Settings) (store.Settings, error)
	Reset() store.Settings
	GetString(key string) string
}

// ConversationLister backs the conversations debug endpoint.
type ConversationLister interface {
	IDs() []string
	Len() int
}

// Handler owns the route table and the translation between HTTP and the
// services.
type Handler struct {
	settings SettingsAPI
	convs    ConversationLister
	chat     ChatSender
	lead     LeadSubmitter
	clk      clock.Clock
	log      *slog.Logger
}

func NewHandler(settings SettingsAPI, convs ConversationLister, chat ChatSender, lead LeadSubmitter, clk clock.Clock, log *slog.Logger) (*Handler, error) {
	if settings == nil {
		return nil, errors.New("handler: settings store must not be nil")
	}
	if convs == nil {
		return nil, errors.New("handler: conversation store must not be nil")
	}
	if chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if lead == nil {
		return nil, errors.New("handler: lead service must not be nil")
	}
	if clk == nil {
		return nil, errors.New("handler: clock must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{settings: settings, convs: convs, chat: chat, lead: lead, clk: clk, log: log}, nil
}

// Routes returns the full route table wrapped in CORS and request
// logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/settings", h.handleGetSettings)
	mux.HandleFunc("POST /api/settings", h.handleUpdateSettings)
	mux.HandleFunc("POST /api/settings/reset", h.handleResetSettings)
	mux.HandleFunc("POST /api/chat/send", h.handleChatSend)
	mux.HandleFunc("POST /api/lead/submit", h.handleLeadSubmit)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/conversations", h.handleConversations)

	return h.logRequests(corsMiddleware(mux))
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var partial store.Settings
	if err := readJSON(r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, "No settings provided")
		return
	}

	updated, err := h.settings.Update(partial)
	if err != nil {
		if errors.Is(err, store.ErrEmptyUpdate) {
			writeError(w, http.StatusBadRequest, "No settings provided")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Settings updated successfully",
		"settings": updated,
	})
}

func (h *Handler) handleResetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Settings reset successfully",
		"settings": h.settings.Reset(),
	})
}

type chatSendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatSendResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

func (h *Handler) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatSendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	out, err := h.chat.Send(r.Context(), usecase.SendInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatSendResponse{
		Response:       out.Reply,
		ConversationID: out.ConversationID,
	})
}

func (h *Handler) writeChatError(w http.ResponseWriter, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.log.Error("chat send failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		writeError(w, http.StatusBadRequest, "Message is required")
	case usecase.ErrorNotConfigured:
		writeError(w, http.StatusBadRequest, "OpenAI API key not configured")
	case usecase.ErrorUpstream:
		// Provider detail passes through, matching the reference behavior.
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("שגיאה בשליחה ל-OpenAI: %v", ucErr.Err))
	default:
		h.log.Error("chat send failed", "code", string(ucErr.Code), "reason", ucErr.Reason, "err", ucErr.Err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleLeadSubmit(w http.ResponseWriter, r *http.Request) {
	var lead map[string]any
	if err := readJSON(r, &lead); err != nil {
		writeError(w, http.StatusBadRequest, "Lead data is required")
		return
	}

	out, err := h.lead.Submit(r.Context(), lead)
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
			writeError(w, http.StatusBadRequest, "Lead data is required")
			return
		}
		h.log.Error("lead submit failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch out.Status {
	case usecase.StatusSuccess:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "Lead submitted successfully",
			"webhook_status": string(out.Status),
		})
	case usecase.StatusFailed:
		// Delivery failure is soft: the lead was accepted locally.
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "Lead received but webhook failed",
			"webhook_status": string(out.Status),
			"webhook_error":  out.Detail,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "Lead received (no webhook configured)",
			"webhook_status": string(usecase.StatusNoWebhook),
		})
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"timestamp":           h.clk.NowUTC().Format(time.RFC3339),
		"settings_configured": h.settings.GetString("openaiApiKey") != "",
	})
}

func (h *Handler) handleConversations(w http.ResponseWriter, _ *http.Request) {
	ids := h.convs.IDs()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_conversations": len(ids),
		"conversations":        ids,
	})
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// corsMiddleware answers preflights and opens the API to browser
// frontends, mirroring the reference deployment.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
