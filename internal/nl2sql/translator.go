package nl2sql

import "context"

type Request struct {
	Dialect  string `json:"dialect"`
	Schema   string `json:"schema"`
	History  string `json:"history"`
	Question string `json:"question"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type ValidationRequest struct {
	Dialect string `json:"dialect"`
	Schema  string `json:"schema"`
	SQL     string `json:"sql"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Validator asks for a corrected statement. It always returns a statement
// that can be executed: the input when the check fails or is inconclusive.
type Validator interface {
	Validate(ctx context.Context, req ValidationRequest) (string, error)
}
