package usecase

import (
	"context"
	"errors"
	"time"

	"chatbot-backend/internal/clock"
	"chatbot-backend/internal/domain"
)

const (
	settingKeyWebhookURL = "webhookUrl"

	// placeholderWebhookURL is the default shipped in settings; it means
	// "no webhook configured", same as an empty value.
	placeholderWebhookURL = "https://api.example.com/webhook"
)

// WebhookStatus reports how lead delivery went. Delivery failure is a
// soft failure: the lead was accepted locally either way.
type WebhookStatus string

const (
	StatusSuccess   WebhookStatus = "success"
	StatusFailed    WebhookStatus = "failed"
	StatusNoWebhook WebhookStatus = "no_webhook"
)

// WebhookPoster delivers a JSON payload to the configured webhook URL.
// A non-200 response must surface as an error.
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload map[string]any) error
}

// ConversationRemover is the transcript surface consumed by LeadService.
type ConversationRemover interface {
	Get(id string) (domain.Conversation, bool)
	Remove(id string)
}

// LeadService forwards lead submissions to the webhook, attaching the
// matching transcript, and deletes the conversation once delivery is
// acknowledged.
type LeadService struct {
	settings SettingsReader
	convs    ConversationRemover
	webhook  WebhookPoster
	clk      clock.Clock
}

type SubmitOutput struct {
	Status WebhookStatus
	Detail string
}

func NewLeadService(settings SettingsReader, convs ConversationRemover, webhook WebhookPoster, clk clock.Clock) (*LeadService, error) {
	if settings == nil {
		return nil, errors.New("usecase: settings reader must not be nil")
	}
	if convs == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if webhook == nil {
		return nil, errors.New("usecase: webhook poster must not be nil")
	}
	if clk == nil {
		return nil, errors.New("usecase: clock must not be nil")
	}
	return &LeadService{settings: settings, convs: convs, webhook: webhook, clk: clk}, nil
}

// Submit stamps the lead, attaches the transcript when conversationId
// matches a stored conversation, and posts to the configured webhook.
// Only an HTTP 200 acknowledgment deletes the conversation.
func (s *LeadService) Submit(ctx context.Context, lead map[string]any) (SubmitOutput, error) {
	if len(lead) == 0 {
		return SubmitOutput{}, newError(ErrorInvalidInput, "empty_lead", nil)
	}

	payload := make(map[string]any, len(lead)+2)
	for k, v := range lead {
		payload[k] = v
	}

	convID, _ := lead["conversationId"].(string)
	if convID != "" {
		if conv, ok := s.convs.Get(convID); ok {
			payload["conversation"] = conv
		}
	}
	payload["submitted_at"] = s.clk.NowUTC().Format(time.RFC3339)

	webhookURL := s.settings.GetString(settingKeyWebhookURL)
	if webhookURL == "" || webhookURL == placeholderWebhookURL {
		return SubmitOutput{Status: StatusNoWebhook}, nil
	}

	if err := s.webhook.Post(ctx, webhookURL, payload); err != nil {
		return SubmitOutput{Status: StatusFailed, Detail: err.Error()}, nil
	}

	if convID != "" {
		s.convs.Remove(convID)
	}
	return SubmitOutput{Status: StatusSuccess}, nil
}
