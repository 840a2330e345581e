package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlchat/sqlchat/internal/answer"
	"github.com/sqlchat/sqlchat/internal/api"
	"github.com/sqlchat/sqlchat/internal/api/uistatic"
	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/export"
	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/session"
	s3store "github.com/sqlchat/sqlchat/internal/storage/s3"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("sqlchat")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	client, err := newLLMClient(cfg)
	if err != nil {
		logger.Error("failed to initialize language model client", slog.Any("error", err))
		os.Exit(1)
	}
	sessionDeps, err := newSessionDependencies(cfg, client, logger)
	if err != nil {
		logger.Error("failed to initialize chat pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	manager, err := session.NewManager(session.Config{
		HistoryWindow:    cfg.Chat.HistoryWindow,
		SchemaSampleRows: cfg.Chat.SchemaSampleRows,
		OpenOptions: database.OpenOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			PingTimeout:     cfg.Database.PingTimeout,
		},
		Executor: query.Executor{
			ReadOnly: cfg.Chat.ReadOnly,
			RowLimit: cfg.Chat.RowLimit,
			Timeout:  cfg.Chat.QueryTimeout,
		},
	}, sessionDeps)
	if err != nil {
		logger.Error("failed to initialize chat session", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = manager.Close() }()

	deps := api.Dependencies{
		Logger: logger,
		Chat:   manager,
		UI:     uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckLLMConfig(cfg),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Export.Enabled {
		exporter, err := newExporter(cfg)
		if err != nil {
			logger.Error("failed to initialize result export", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = exporter
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting chat server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("llm_provider", client.Provider()),
			slog.String("llm_model", client.Model()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("chat server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down chat server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// newSessionDependencies wires the prompt chain around one model client. The
// validation pass shares the translator and is skipped when disabled.
func newSessionDependencies(cfg config.Config, client llm.Client, logger *slog.Logger) (session.Dependencies, error) {
	translator, err := nl2sql.NewLLMTranslator(client)
	if err != nil {
		return session.Dependencies{}, fmt.Errorf("sql translator: %w", err)
	}
	responder, err := answer.NewLLMResponder(client, llm.WithModel(cfg.LLM.AnswerModel))
	if err != nil {
		return session.Dependencies{}, fmt.Errorf("answer responder: %w", err)
	}
	deps := session.Dependencies{
		Opener:     database.Open,
		Translator: translator,
		Responder:  responder,
		Logger:     logger,
	}
	if cfg.LLM.ValidateSQL {
		deps.Validator = translator
	}
	return deps, nil
}

func newLLMClient(cfg config.Config) (llm.Client, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case llm.ProviderOpenAI:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		})
	case llm.ProviderOllama:
		return llm.NewOllamaClient(llm.OllamaConfig{
			Host:        cfg.LLM.OllamaHost,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			KeepAlive:   cfg.LLM.OllamaKeepAlive,
			Timeout:     cfg.LLM.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}

func newExporter(cfg config.Config) (*export.Exporter, error) {
	store, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.Export.Endpoint,
		Region:           cfg.Export.Region,
		Bucket:           cfg.Export.Bucket,
		AccessKeyID:      cfg.Export.AccessKeyID,
		SecretAccessKey:  cfg.Export.SecretAccessKey,
		UseSSL:           cfg.Export.UseSSL,
		Prefix:           cfg.Export.Prefix,
		AutoCreateBucket: cfg.Export.AutoCreateBucket,
	})
	if err != nil {
		return nil, err
	}
	return export.NewExporter(store)
}
