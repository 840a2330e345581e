package main

import (
	"testing"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/llm"
)

func TestNewLLMClientSelectsProvider(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLCHAT_LLM_API_KEY": "secret"})
	client, err := newLLMClient(cfg)
	if err != nil {
		t.Fatalf("newLLMClient() error = %v", err)
	}
	if client.Provider() != llm.ProviderOpenAI {
		t.Fatalf("Provider() = %q", client.Provider())
	}

	cfg = loadConfig(t, map[string]string{
		"SQLCHAT_LLM_PROVIDER": "ollama",
		"SQLCHAT_LLM_MODEL":    "llama3.2",
	})
	client, err = newLLMClient(cfg)
	if err != nil {
		t.Fatalf("newLLMClient() error = %v", err)
	}
	if client.Provider() != llm.ProviderOllama || client.Model() != "llama3.2" {
		t.Fatalf("client = %s/%s", client.Provider(), client.Model())
	}
}

func TestNewLLMClientRequiresAPIKey(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	if _, err := newLLMClient(cfg); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNewSessionDependenciesValidatesByDefault(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLCHAT_LLM_API_KEY": "secret"})
	client, err := newLLMClient(cfg)
	if err != nil {
		t.Fatalf("newLLMClient() error = %v", err)
	}

	deps, err := newSessionDependencies(cfg, client, nil)
	if err != nil {
		t.Fatalf("newSessionDependencies() error = %v", err)
	}
	if deps.Translator == nil || deps.Responder == nil || deps.Opener == nil {
		t.Fatalf("deps = %+v", deps)
	}
	if deps.Validator == nil {
		t.Fatal("validation pass should run on every turn by default")
	}

	cfg = loadConfig(t, map[string]string{"SQLCHAT_LLM_API_KEY": "secret", "SQLCHAT_SQL_VALIDATE": "false"})
	deps, err = newSessionDependencies(cfg, client, nil)
	if err != nil {
		t.Fatalf("newSessionDependencies() error = %v", err)
	}
	if deps.Validator != nil {
		t.Fatal("validation pass should be skipped when disabled")
	}
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("sqlchat", func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}
