package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends one chat exchange to a language model and returns the reply
// text. Implementations do not stream.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts ...Option) (string, error)
	Model() string
	Provider() string
}

type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Option func(*Settings)

func WithModel(model string) Option {
	return func(s *Settings) {
		if model != "" {
			s.Model = model
		}
	}
}

func WithTemperature(temperature float64) Option {
	return func(s *Settings) { s.Temperature = temperature }
}

func WithMaxTokens(tokens int) Option {
	return func(s *Settings) { s.MaxTokens = tokens }
}

func applyOptions(base Settings, opts []Option) Settings {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}
