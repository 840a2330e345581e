package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	LLM           LLMConfig
	Chat          ChatConfig
	Export        ExportConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds the values pre-filled into the connection form and
// the pool settings applied to every connection the session opens.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type LLMConfig struct {
	Provider        string
	BaseURL         string
	APIKey          string
	Model           string
	AnswerModel     string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	ValidateSQL     bool
	OllamaHost      string
	OllamaKeepAlive time.Duration
}

type ChatConfig struct {
	HistoryWindow    int
	RowLimit         int
	SchemaSampleRows int
	ReadOnly         bool
	QueryTimeout     time.Duration
}

type ExportConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	// GROQ_API_KEY is a fallback; SQLCHAT_LLM_API_KEY wins when both are set.
	if err := applyString(lookup, "GROQ_API_KEY", &cfg.LLM.APIKey); err != nil {
		return Config{}, err
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SQLCHAT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SQLCHAT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SQLCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SQLCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SQLCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SQLCHAT_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "SQLCHAT_DB_HOST", &cfg.Database.Host) },
		func() error { return applyString(lookup, "SQLCHAT_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "SQLCHAT_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "SQLCHAT_DB_NAME", &cfg.Database.Database) },
		func() error { return applyInt(lookup, "SQLCHAT_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "SQLCHAT_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error { return applyDuration(lookup, "SQLCHAT_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime) },
		func() error { return applyDuration(lookup, "SQLCHAT_DB_PING_TIMEOUT", &cfg.Database.PingTimeout) },
		func() error { return applyString(lookup, "SQLCHAT_LLM_PROVIDER", &cfg.LLM.Provider) },
		func() error { return applyString(lookup, "SQLCHAT_LLM_BASE_URL", &cfg.LLM.BaseURL) },
		func() error { return applyString(lookup, "SQLCHAT_LLM_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "SQLCHAT_LLM_MODEL", &cfg.LLM.Model) },
		func() error { return applyString(lookup, "SQLCHAT_LLM_ANSWER_MODEL", &cfg.LLM.AnswerModel) },
		func() error { return applyFloat(lookup, "SQLCHAT_LLM_TEMPERATURE", &cfg.LLM.Temperature) },
		func() error { return applyInt(lookup, "SQLCHAT_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens) },
		func() error { return applyDuration(lookup, "SQLCHAT_LLM_TIMEOUT", &cfg.LLM.Timeout) },
		func() error { return applyBool(lookup, "SQLCHAT_SQL_VALIDATE", &cfg.LLM.ValidateSQL) },
		func() error { return applyString(lookup, "SQLCHAT_OLLAMA_HOST", &cfg.LLM.OllamaHost) },
		func() error { return applyDuration(lookup, "SQLCHAT_OLLAMA_KEEP_ALIVE", &cfg.LLM.OllamaKeepAlive) },
		func() error { return applyInt(lookup, "SQLCHAT_HISTORY_WINDOW", &cfg.Chat.HistoryWindow) },
		func() error { return applyInt(lookup, "SQLCHAT_QUERY_ROW_LIMIT", &cfg.Chat.RowLimit) },
		func() error { return applyInt(lookup, "SQLCHAT_SCHEMA_SAMPLE_ROWS", &cfg.Chat.SchemaSampleRows) },
		func() error { return applyBool(lookup, "SQLCHAT_SQL_READ_ONLY", &cfg.Chat.ReadOnly) },
		func() error { return applyDuration(lookup, "SQLCHAT_QUERY_TIMEOUT", &cfg.Chat.QueryTimeout) },
		func() error { return applyBool(lookup, "SQLCHAT_EXPORT_ENABLED", &cfg.Export.Enabled) },
		func() error { return applyString(lookup, "SQLCHAT_EXPORT_ENDPOINT", &cfg.Export.Endpoint) },
		func() error { return applyString(lookup, "SQLCHAT_EXPORT_REGION", &cfg.Export.Region) },
		func() error { return applyString(lookup, "SQLCHAT_EXPORT_BUCKET", &cfg.Export.Bucket) },
		func() error { return applyString(lookup, "SQLCHAT_EXPORT_ACCESS_KEY", &cfg.Export.AccessKeyID) },
		func() error { return applyString(lookup, "SQLCHAT_EXPORT_SECRET_KEY", &cfg.Export.SecretAccessKey) },
		func() error { return applyBool(lookup, "SQLCHAT_EXPORT_USE_SSL", &cfg.Export.UseSSL) },
		func() error { return applyString(lookup, "SQLCHAT_EXPORT_PREFIX", &cfg.Export.Prefix) },
		func() error { return applyBool(lookup, "SQLCHAT_EXPORT_AUTO_CREATE_BUCKET", &cfg.Export.AutoCreateBucket) },
		func() error { return applyBool(lookup, "SQLCHAT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SQLCHAT_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "SQLCHAT_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "SQLCHAT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid SQLCHAT_LLM_PROVIDER: %q", c.LLM.Provider)
	}
	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("invalid SQLCHAT_HISTORY_WINDOW: must be >= 0")
	}
	if c.Chat.RowLimit <= 0 {
		return fmt.Errorf("invalid SQLCHAT_QUERY_ROW_LIMIT: must be > 0")
	}
	if c.Chat.SchemaSampleRows < 0 {
		return fmt.Errorf("invalid SQLCHAT_SCHEMA_SAMPLE_ROWS: must be >= 0")
	}
	if c.Export.Enabled && (c.Export.Endpoint == "" || c.Export.Bucket == "") {
		return fmt.Errorf("export requires SQLCHAT_EXPORT_ENDPOINT and SQLCHAT_EXPORT_BUCKET")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlchat"},
		HTTP: HTTPConfig{
			Address:      ":8501",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			Host:            "localhost",
			Port:            "3306",
			User:            "root",
			Database:        "",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			BaseURL:         "https://api.groq.com/openai",
			Model:           "llama-3.1-8b-instant",
			Temperature:     0,
			MaxTokens:       1024,
			Timeout:         30 * time.Second,
			ValidateSQL:     true,
			OllamaHost:      "http://localhost:11434",
			OllamaKeepAlive: 10 * time.Minute,
		},
		Chat: ChatConfig{
			HistoryWindow:    10,
			RowLimit:         200,
			SchemaSampleRows: 3,
			ReadOnly:         true,
			QueryTimeout:     30 * time.Second,
		},
		Export: ExportConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlchat-exports",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18501"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.Export.UseSSL = true
		cfg.Export.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
