package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	ProviderOllama    = "ollama"
	DefaultOllamaHost = "http://localhost:11434"
)

type OllamaConfig struct {
	Host        string
	Model       string
	Temperature float64
	MaxTokens   int
	KeepAlive   time.Duration
	Timeout     time.Duration
}

// OllamaClient runs prompts against a local Ollama server.
type OllamaClient struct {
	chat      *api.Client
	settings  Settings
	keepAlive time.Duration
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = DefaultOllamaHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama host %q must include scheme and host", host)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		chat: api.NewClient(base, &http.Client{Timeout: timeout}),
		settings: Settings{
			Model:       model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		keepAlive: cfg.KeepAlive,
	}, nil
}

func (c *OllamaClient) Model() string    { return c.settings.Model }
func (c *OllamaClient) Provider() string { return ProviderOllama }

func (c *OllamaClient) Complete(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}
	settings := applyOptions(c.settings, opts)

	chatMessages := make([]api.Message, 0, len(messages))
	for _, message := range messages {
		chatMessages = append(chatMessages, api.Message{Role: message.Role, Content: message.Content})
	}
	stream := false
	options := map[string]any{"temperature": settings.Temperature}
	if settings.MaxTokens > 0 {
		options["num_predict"] = settings.MaxTokens
	}
	req := &api.ChatRequest{
		Model:    settings.Model,
		Messages: chatMessages,
		Stream:   &stream,
		Options:  options,
	}
	if c.keepAlive > 0 {
		req.KeepAlive = &api.Duration{Duration: c.keepAlive}
	}

	var reply strings.Builder
	err := c.chat.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return reply.String(), nil
}
