package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/prompts"
)

var validatedPrefixes = []string{"SELECT", "INSERT", "UPDATE", "DELETE"}

// LLMTranslator generates and validates SQL with a chat model.
type LLMTranslator struct {
	client llm.Client
	opts   []llm.Option
}

func NewLLMTranslator(client llm.Client, opts ...llm.Option) (*LLMTranslator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	return &LLMTranslator{client: client, opts: opts}, nil
}

func (t *LLMTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	systemPrompt, userPrompt, err := prompts.RenderSQLGeneration(prompts.SQLGenerationData{
		Dialect:  dialectOrDefault(req.Dialect),
		Schema:   req.Schema,
		History:  req.History,
		Question: strings.TrimSpace(req.Question),
	})
	if err != nil {
		return Result{}, err
	}

	reply, err := t.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}, t.opts...)
	if err != nil {
		return Result{}, err
	}

	sql := stripMarkdownSQL(reply)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      sql,
		Provider: t.client.Provider(),
		Model:    t.client.Model(),
	}, nil
}

func (t *LLMTranslator) Validate(ctx context.Context, req ValidationRequest) (string, error) {
	original := req.SQL
	if !hasValidatedPrefix(original) {
		return original, nil
	}
	systemPrompt, userPrompt, err := prompts.RenderSQLValidation(prompts.SQLValidationData{
		Dialect: dialectOrDefault(req.Dialect),
		Schema:  req.Schema,
		SQL:     strings.TrimSpace(original),
	})
	if err != nil {
		return original, err
	}

	reply, err := t.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}, t.opts...)
	if err != nil {
		return original, err
	}

	validated := stripMarkdownSQL(reply)
	if strings.Contains(strings.ToLower(validated), "valid") || !hasValidatedPrefix(validated) {
		return original, nil
	}
	return validated, nil
}

func hasValidatedPrefix(sqlText string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	for _, prefix := range validatedPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func dialectOrDefault(dialect string) string {
	if strings.TrimSpace(dialect) == "" {
		return "SQL"
	}
	return dialect
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
