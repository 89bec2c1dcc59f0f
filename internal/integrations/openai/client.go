// Package openai relays chat transcripts to an OpenAI-compatible
// chat-completion endpoint.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"chatbot-backend/internal/domain"
)

const (
	defaultModel       = goopenai.GPT3Dot5Turbo
	defaultMaxTokens   = 500
	defaultTemperature = 0.7
	defaultTimeout     = 60 * time.Second
)

// Client calls the chat-completion provider with a fixed model, response
// cap and sampling temperature. The API key is a per-call argument: it
// lives in the mutable settings store and can change between requests, so
// the underlying SDK client is built per call rather than cached.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	model       string
	maxTokens   int
	temperature float32
}

type Option func(*Client)

// WithBaseURL points the client at an alternate endpoint (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends the messages and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, apiKey string, messages []domain.ChatMessage) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", errors.New("openai: api key must not be empty")
	}
	if len(messages) == 0 {
		return "", errors.New("openai: no messages to send")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	client := goopenai.NewClientWithConfig(cfg)

	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []domain.ChatMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
