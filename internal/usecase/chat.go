package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chatbot-backend/internal/domain"
	"chatbot-backend/internal/store"
)

const (
	settingKeyAPIKey  = "openaiApiKey"
	settingKeyBotName = "botName"
	defaultBotName    = "עוזר"
)

// SettingsReader exposes the configuration reads the relays need.
type SettingsReader interface {
	Get() store.Settings
	GetString(key string) string
}

// ConversationReadWriter is the transcript surface consumed by ChatService.
type ConversationReadWriter interface {
	Ensure(id string) domain.Conversation
	Append(id, role, content string) error
	Get(id string) (domain.Conversation, bool)
}

// LLMClient invokes the external chat-completion provider. The API key is
// a call argument because it lives in the mutable settings store.
type LLMClient interface {
	Chat(ctx context.Context, apiKey string, messages []domain.ChatMessage) (string, error)
}

// ChatService relays user messages to the provider while maintaining the
// per-conversation transcript.
type ChatService struct {
	settings SettingsReader
	convs    ConversationReadWriter
	llm      LLMClient
}

type SendInput struct {
	Message        string
	ConversationID string
}

type SendOutput struct {
	Reply          string
	ConversationID string
}

func NewChatService(settings SettingsReader, convs ConversationReadWriter, llm LLMClient) (*ChatService, error) {
	if settings == nil {
		return nil, errors.New("usecase: settings reader must not be nil")
	}
	if convs == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &ChatService{settings: settings, convs: convs, llm: llm}, nil
}

// Send appends the user message, calls the provider with the full
// transcript behind a system instruction, appends the reply and returns
// it. Validation and the provider-key check run before the conversation
// is created, so a rejected request leaves the store untouched. The user
// turn is not rolled back when the provider call fails; the transcript
// keeps the outbound message.
func (s *ChatService) Send(ctx context.Context, in SendInput) (SendOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return SendOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	apiKey := s.settings.GetString(settingKeyAPIKey)
	if apiKey == "" {
		return SendOutput{}, newError(ErrorNotConfigured, "openai_api_key_missing", nil)
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}

	s.convs.Ensure(convID)
	if err := s.convs.Append(convID, domain.RoleUser, message); err != nil {
		return SendOutput{}, newError(ErrorInternal, "append_user_turn", err)
	}

	conv, _ := s.convs.Get(convID)
	reply, err := s.llm.Chat(ctx, apiKey, s.buildMessages(conv))
	if err != nil {
		return SendOutput{}, newError(ErrorUpstream, "openai_error", err)
	}

	if err := s.convs.Append(convID, domain.RoleAssistant, reply); err != nil {
		return SendOutput{}, newError(ErrorInternal, "append_assistant_turn", err)
	}

	return SendOutput{Reply: reply, ConversationID: convID}, nil
}

// buildMessages prefixes the transcript with one system instruction that
// names the configured bot and pins the answer language.
func (s *ChatService) buildMessages(conv domain.Conversation) []domain.ChatMessage {
	botName := s.settings.GetString(settingKeyBotName)
	if botName == "" {
		botName = defaultBotName
	}
	messages := make([]domain.ChatMessage, 0, len(conv.Turns)+1)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: fmt.Sprintf("אתה עוזר וירטואלי בשם %s. ענה בעברית בצורה ידידותית ומועילה.", botName),
	})
	for _, t := range conv.Turns {
		messages = append(messages, domain.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return messages
}

var newUUID = func() string {
	return uuid.NewString()
}
