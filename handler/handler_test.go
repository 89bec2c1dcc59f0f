package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatbot-backend/internal/domain"
	"chatbot-backend/internal/store"
	"chatbot-backend/internal/usecase"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) NowUTC() time.Time {
	return c.now
}

type stubChat struct {
	out usecase.SendOutput
	err error
	in  usecase.SendInput
}

func (s *stubChat) Send(_ context.Context, in usecase.SendInput) (usecase.SendOutput, error) {
	s.in = in
	return s.out, s.err
}

type stubLead struct {
	out  usecase.SubmitOutput
	err  error
	lead map[string]any
}

func (s *stubLead) Submit(_ context.Context, lead map[string]any) (usecase.SubmitOutput, error) {
	s.lead = lead
	return s.out, s.err
}

type fixture struct {
	handler  http.Handler
	settings *store.SettingsStore
	convs    *store.ConversationStore
	chat     *stubChat
	lead     *stubLead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	settings, err := store.NewSettingsStore(store.Settings{
		"webhookUrl":   "https://api.example.com/webhook",
		"openaiApiKey": "",
		"botName":      "עוזר",
	})
	require.NoError(t, err)
	convs, err := store.NewConversationStore(clk)
	require.NoError(t, err)

	chat := &stubChat{}
	lead := &stubLead{}
	h, err := NewHandler(settings, convs, chat, lead, clk, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	require.NoError(t, err)

	return &fixture{
		handler:  h.Routes(),
		settings: settings,
		convs:    convs,
		chat:     chat,
		lead:     lead,
	}
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	clk := &fakeClock{}
	settings, err := store.NewSettingsStore(store.Settings{"k": "v"})
	require.NoError(t, err)
	convs, err := store.NewConversationStore(clk)
	require.NoError(t, err)

	_, err = NewHandler(nil, convs, &stubChat{}, &stubLead{}, clk, nil)
	require.Error(t, err)
	_, err = NewHandler(settings, nil, &stubChat{}, &stubLead{}, clk, nil)
	require.Error(t, err)
	_, err = NewHandler(settings, convs, nil, &stubLead{}, clk, nil)
	require.Error(t, err)
	_, err = NewHandler(settings, convs, &stubChat{}, nil, clk, nil)
	require.Error(t, err)
	_, err = NewHandler(settings, convs, &stubChat{}, &stubLead{}, nil, nil)
	require.Error(t, err)
}

func TestGetSettings(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "עוזר", body["botName"])
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/settings", `{"botName":"Bot","newKey":"v"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "Settings updated successfully", body["message"])
	settings := body["settings"].(map[string]any)
	require.Equal(t, "Bot", settings["botName"])
	require.Equal(t, "v", settings["newKey"])
	// Untouched keys survive the merge.
	require.Equal(t, "https://api.example.com/webhook", settings["webhookUrl"])
}

func TestUpdateSettings_EmptyBody(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{"", "{}", "null"} {
		rec := f.do(t, http.MethodPost, "/api/settings", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body=%q", body)
		out := decodeBody[map[string]string](t, rec)
		require.NotEmpty(t, out["error"])
	}
}

func TestResetSettings(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/settings", `{"botName":"Bot"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/settings/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "Settings reset successfully", body["message"])
	settings := body["settings"].(map[string]any)
	require.Equal(t, "עוזר", settings["botName"])
}

func TestChatSend_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.chat.out = usecase.SendOutput{Reply: "hello", ConversationID: "c1"}

	rec := f.do(t, http.MethodPost, "/api/chat/send", `{"message":"hi","conversationId":"c1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.SendInput{Message: "hi", ConversationID: "c1"}, f.chat.in)

	body := decodeBody[chatSendResponse](t, rec)
	require.Equal(t, "hello", body.Response)
	require.Equal(t, "c1", body.ConversationID)
}

func TestChatSend_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing message", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest},
		{name: "provider unconfigured", err: &usecase.Error{Code: usecase.ErrorNotConfigured, Reason: "openai_api_key_missing"}, status: http.StatusBadRequest},
		{name: "provider failure", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error", Err: errors.New("auth failed")}, status: http.StatusInternalServerError},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "append_user_turn"}, status: http.StatusInternalServerError},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.chat.err = tc.err

			rec := f.do(t, http.MethodPost, "/api/chat/send", `{"message":"hi","conversationId":"c1"}`)
			require.Equal(t, tc.status, rec.Code)
			body := decodeBody[map[string]string](t, rec)
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestChatSend_ProviderErrorDetailPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.chat.err = &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error", Err: errors.New("invalid api key")}

	rec := f.do(t, http.MethodPost, "/api/chat/send", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Contains(t, body["error"], "invalid api key")
}

func TestChatSend_EmptyBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/chat/send", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeadSubmit_Success(t *testing.T) {
	f := newFixture(t)
	f.lead.out = usecase.SubmitOutput{Status: usecase.StatusSuccess}

	rec := f.do(t, http.MethodPost, "/api/lead/submit", `{"conversationId":"c1","name":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "x", f.lead.lead["name"])

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "success", body["webhook_status"])
	require.Equal(t, "Lead submitted successfully", body["message"])
}

func TestLeadSubmit_WebhookFailureStillAccepted(t *testing.T) {
	f := newFixture(t)
	f.lead.out = usecase.SubmitOutput{Status: usecase.StatusFailed, Detail: "Status code: 500"}

	rec := f.do(t, http.MethodPost, "/api/lead/submit", `{"conversationId":"c1","name":"x"}`)
	// Soft failure: the caller still gets a 200 acknowledgment.
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "failed", body["webhook_status"])
	require.Equal(t, "Status code: 500", body["webhook_error"])
}

func TestLeadSubmit_NoWebhook(t *testing.T) {
	f := newFixture(t)
	f.lead.out = usecase.SubmitOutput{Status: usecase.StatusNoWebhook}

	rec := f.do(t, http.MethodPost, "/api/lead/submit", `{"name":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "no_webhook", body["webhook_status"])
}

func TestLeadSubmit_EmptyBody(t *testing.T) {
	f := newFixture(t)
	f.lead.err = &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_lead"}

	for _, body := range []string{"", "{}"} {
		rec := f.do(t, http.MethodPost, "/api/lead/submit", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body=%q", body)
	}
}

func TestLeadSubmit_UnexpectedError(t *testing.T) {
	f := newFixture(t)
	f.lead.err = errors.New("boom")

	rec := f.do(t, http.MethodPost, "/api/lead/submit", `{"name":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "internal error", body["error"], "internal detail must not leak")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "2025-06-01T12:00:00Z", body["timestamp"])
	require.Equal(t, false, body["settings_configured"])

	_, err := f.settings.Update(store.Settings{"openaiApiKey": "sk-test"})
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/health", "")
	body = decodeBody[map[string]any](t, rec)
	require.Equal(t, true, body["settings_configured"])
}

func TestConversations(t *testing.T) {
	f := newFixture(t)
	f.convs.Ensure("c1")
	f.convs.Ensure("c2")
	require.NoError(t, f.convs.Append("c1", domain.RoleUser, "hi"))

	rec := f.do(t, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, float64(2), body["active_conversations"])
	ids := body["conversations"].([]any)
	require.ElementsMatch(t, []any{"c1", "c2"}, ids)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/api/chat/send", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
