package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/prompts"
)

type Request struct {
	Dialect  string
	Schema   string
	History  string
	Question string
	SQL      string
	Results  string
}

type Responder interface {
	Answer(ctx context.Context, req Request) (string, error)
}

// LLMResponder turns a result table into a natural-language answer.
type LLMResponder struct {
	client llm.Client
	opts   []llm.Option
}

func NewLLMResponder(client llm.Client, opts ...llm.Option) (*LLMResponder, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	return &LLMResponder{client: client, opts: opts}, nil
}

func (r *LLMResponder) Answer(ctx context.Context, req Request) (string, error) {
	dialect := req.Dialect
	if dialect == "" {
		dialect = "SQL"
	}
	systemPrompt, userPrompt, err := prompts.RenderAnswer(prompts.AnswerData{
		Dialect:  dialect,
		Schema:   req.Schema,
		History:  req.History,
		Question: strings.TrimSpace(req.Question),
		SQL:      req.SQL,
		Results:  req.Results,
	})
	if err != nil {
		return "", err
	}

	reply, err := r.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}, r.opts...)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}
	return reply, nil
}
