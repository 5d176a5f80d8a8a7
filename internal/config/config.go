// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (TRIPWISE_* plus DATABASE_URL / LLM_API_KEY)
//  2. Config file (~/.tripwise/config.yaml or ./config.yaml)
//  3. Defaults
//
// Sensitive values (LLM API key, Postgres password) are masked in
// MarshalJSON and String so a dumped config never leaks secrets.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate. Callers check with errors.Is.
var (
	ErrMissingAPIKey      = errors.New("missing LLM API key")
	ErrInvalidBaseURL     = errors.New("invalid LLM base URL")
	ErrInvalidModelName   = errors.New("invalid model name")
	ErrInvalidTemperature = errors.New("invalid temperature")
	ErrInvalidMaxTokens   = errors.New("invalid max tokens")
	ErrInvalidRounds      = errors.New("invalid max dispatch rounds")
	ErrInvalidTimeout     = errors.New("invalid turn timeout")
	ErrInvalidSessionTTL  = errors.New("invalid session ttl")
	ErrInvalidHistory     = errors.New("invalid history window")
	ErrInvalidPostgres    = errors.New("invalid PostgreSQL settings")
)

// History window bounds. The orchestrator never sends more than
// MaxHistoryWindow messages upstream regardless of configuration.
const (
	DefaultHistoryWindow = 10
	MaxHistoryWindow     = 200
)

// LLM holds the upstream chat-completion endpoint settings.
type LLM struct {
	BaseURL           string        `mapstructure:"base_url" json:"base_url"`
	APIKey            string        `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Model             string        `mapstructure:"model" json:"model"`
	Temperature       float32       `mapstructure:"temperature" json:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" json:"max_tokens"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout" json:"turn_timeout"`
	MaxDispatchRounds int           `mapstructure:"max_dispatch_rounds" json:"max_dispatch_rounds"`
}

// Postgres holds the durable archive store connection settings.
type Postgres struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"` // SENSITIVE: masked in MarshalJSON
	DBName   string `mapstructure:"db_name" json:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode" json:"ssl_mode"`
}

// Session holds conversation lifetime settings.
type Session struct {
	TTL           time.Duration `mapstructure:"ttl" json:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
	HistoryWindow int           `mapstructure:"history_window" json:"history_window"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
}

// Capabilities holds capability-layer settings.
type Capabilities struct {
	// Suppressed lists capability names whose results are not forwarded on
	// the caller-visible channel (internal reasoning state).
	Suppressed []string `mapstructure:"suppressed" json:"suppressed"`

	// CatalogBaseURL and OrderBaseURL point at the collaborator CRUD
	// services the capability executors call.
	CatalogBaseURL string `mapstructure:"catalog_base_url" json:"catalog_base_url"`
	OrderBaseURL   string `mapstructure:"order_base_url" json:"order_base_url"`
}

// Config is the root application configuration.
type Config struct {
	LLM          LLM          `mapstructure:"llm" json:"llm"`
	Postgres     Postgres     `mapstructure:"postgres" json:"postgres"`
	Session      Session      `mapstructure:"session" json:"session"`
	Server       Server       `mapstructure:"server" json:"server"`
	Capabilities Capabilities `mapstructure:"capabilities" json:"capabilities"`
}

// Load reads configuration from all sources, applies defaults, and
// validates. It fails fast on any invalid value.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".tripwise")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("config file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.applyDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.turn_timeout", 5*time.Minute)
	v.SetDefault("llm.max_dispatch_rounds", 3)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "tripwise")
	v.SetDefault("postgres.password", "tripwise_dev_password")
	v.SetDefault("postgres.db_name", "tripwise")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("session.history_window", DefaultHistoryWindow)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.rate_burst", 60)

	v.SetDefault("capabilities.suppressed", []string{"get_categories"})
	v.SetDefault("capabilities.catalog_base_url", "http://localhost:8081")
	v.SetDefault("capabilities.order_base_url", "http://localhost:8082")
}

// bindEnv binds environment overrides explicitly. Hardcoded keys cannot fail
// to bind; a bind error here is a bug, not a runtime condition.
func bindEnv(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: binding %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("llm.api_key", "LLM_API_KEY")
	mustBind("llm.base_url", "TRIPWISE_LLM_BASE_URL")
	mustBind("llm.model", "TRIPWISE_LLM_MODEL")
	mustBind("postgres.password", "TRIPWISE_POSTGRES_PASSWORD")
	mustBind("server.addr", "TRIPWISE_ADDR")
	mustBind("server.cors_origins", "TRIPWISE_CORS_ORIGINS")
	mustBind("server.trust_proxy", "TRIPWISE_TRUST_PROXY")
	mustBind("capabilities.catalog_base_url", "TRIPWISE_CATALOG_URL")
	mustBind("capabilities.order_base_url", "TRIPWISE_ORDER_URL")
}

// applyDatabaseURL overrides the Postgres section from a postgres:// URL.
// Empty input is a no-op.
func (c *Config) applyDatabaseURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPostgres, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPostgres, u.Scheme)
	}

	c.Postgres.Host = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrInvalidPostgres, p)
		}
		c.Postgres.Port = port
	}
	if u.User != nil {
		c.Postgres.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Postgres.Password = pw
		}
	}
	if db := filepath.Base(u.Path); db != "." && db != "/" {
		c.Postgres.DBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.Postgres.SSLMode = mode
	}
	return nil
}

// ConnURL renders the postgres:// connection URL for pgx and migrate.
func (p Postgres) ConnURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// maskedValue replaces secret content in serialized output.
const maskedValue = "********"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskedValue
}

// MarshalJSON masks sensitive fields. Update this when adding new secrets.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.LLM.APIKey = maskSecret(a.LLM.APIKey)
	a.Postgres.Password = maskSecret(a.Postgres.Password)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so fmt verbs never print secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
