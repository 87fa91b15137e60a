// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Stability() StabilityConfig
	Sanitizer() SanitizerConfig
	Producer() ProducerConfig
	LLM() LLMConfig
	Store() StoreConfig
	Batch() BatchConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	StabilityCfg StabilityConfig `mapstructure:"stability" yaml:"stability"`
	SanitizerCfg SanitizerConfig `mapstructure:"sanitizer" yaml:"sanitizer"`
	ProducerCfg  ProducerConfig  `mapstructure:"producer" yaml:"producer"`
	LLMCfg       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
	BatchCfg     BatchConfig     `mapstructure:"batch" yaml:"batch"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Stability() StabilityConfig { return c.StabilityCfg }
func (c *Config) Sanitizer() SanitizerConfig { return c.SanitizerCfg }
func (c *Config) Producer() ProducerConfig   { return c.ProducerCfg }
func (c *Config) LLM() LLMConfig             { return c.LLMCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) Batch() BatchConfig         { return c.BatchCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Stealth           bool          `mapstructure:"stealth" yaml:"stealth"`
	Persona           PersonaConfig `mapstructure:"persona" yaml:"persona"`
}

// PersonaConfig is the browser fingerprint presented to the storefront.
type PersonaConfig struct {
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	Platform  string `mapstructure:"platform" yaml:"platform"`
	Locale    string `mapstructure:"locale" yaml:"locale"`
	Timezone  string `mapstructure:"timezone" yaml:"timezone"`
	Width     int64  `mapstructure:"width" yaml:"width"`
	Height    int64  `mapstructure:"height" yaml:"height"`
}

// StabilityConfig tunes the DOM settle detector.
type StabilityConfig struct {
	Interval              time.Duration `mapstructure:"interval" yaml:"interval"`
	RequiredStableSamples int           `mapstructure:"required_stable_samples" yaml:"required_stable_samples"`
	Timeout               time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SanitizerConfig controls how much markup reaches the producer.
type SanitizerConfig struct {
	// MaxBytes truncates the cleaned HTML. Zero disables the cap.
	MaxBytes int `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// ProducerKind selects how the selector report is generated.
type ProducerKind string

const (
	ProducerLLM       ProducerKind = "llm"
	ProducerHeuristic ProducerKind = "heuristic"
)

// ProducerConfig selects and tunes the report producer.
type ProducerConfig struct {
	Kind ProducerKind `mapstructure:"kind" yaml:"kind"`
	// InstructionsFile replaces the built-in instruction contract when set.
	InstructionsFile string `mapstructure:"instructions_file" yaml:"instructions_file"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderGemini    LLMProvider = "gemini"
)

// LLMConfig defines the configuration for the text-generation service.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIVersion        string        `mapstructure:"api_version" yaml:"api_version"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// StoreBackend selects where validated reports are persisted.
type StoreBackend string

const (
	BackendFile     StoreBackend = "file"
	BackendPostgres StoreBackend = "postgres"
)

// StoreConfig configures report persistence.
type StoreConfig struct {
	Backend  StoreBackend   `mapstructure:"backend" yaml:"backend"`
	Dir      string         `mapstructure:"dir" yaml:"dir"`
	FileName string         `mapstructure:"file_name" yaml:"file_name"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
	Table    string `mapstructure:"table" yaml:"table"`
}

// ConnString returns URL verbatim when set, otherwise a postgres:// URL built
// from the individual fields.
func (p PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.DBName,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}
	if p.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(p.SSLMode)
	}
	return u.String()
}

// BatchConfig bounds the batch command.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// DefaultUserAgent is the desktop Chrome fingerprint presented to storefronts.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "funnel-recon")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.persona.user_agent", DefaultUserAgent)
	v.SetDefault("browser.persona.platform", "MacIntel")
	v.SetDefault("browser.persona.locale", "en-GB")
	v.SetDefault("browser.persona.timezone", "Europe/London")
	v.SetDefault("browser.persona.width", 1440)
	v.SetDefault("browser.persona.height", 900)

	// -- Stability --
	v.SetDefault("stability.interval", "500ms")
	v.SetDefault("stability.required_stable_samples", 3)
	v.SetDefault("stability.timeout", "5s")

	// -- Sanitizer --
	v.SetDefault("sanitizer.max_bytes", 0)

	// -- Producer --
	v.SetDefault("producer.kind", string(ProducerLLM))

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderAnthropic))
	v.SetDefault("llm.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.api_version", "2023-06-01")
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 30)

	// -- Store --
	v.SetDefault("store.backend", string(BackendFile))
	v.SetDefault("store.dir", "selectors")
	v.SetDefault("store.file_name", "pv_to_atc.json")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "") // Should be set via env var
	v.SetDefault("store.postgres.dbname", "funnel_recon")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.table", "selector_reports")

	// -- Batch --
	v.SetDefault("batch.concurrency", 2)
}

// providerKeyEnv lists the vendor variables consulted when FUNNEL_LLM_API_KEY
// is unset.
var providerKeyEnv = map[LLMProvider][]string{
	ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. The vendor key fallback
	// follows the configured provider.
	keyEnv := append([]string{"llm.api_key", "FUNNEL_LLM_API_KEY"}, providerKeyEnv[LLMProvider(v.GetString("llm.provider"))]...)
	_ = v.BindEnv(keyEnv...)
	_ = v.BindEnv("store.postgres.password", "FUNNEL_STORE_POSTGRES_PASSWORD")
	_ = v.BindEnv("store.postgres.url", "FUNNEL_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every user-supplied path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.StoreCfg.Dir,
		&c.LoggerCfg.LogFile,
		&c.ProducerCfg.InstructionsFile,
		&c.BrowserCfg.ExecPath,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.StabilityCfg.Validate(); err != nil {
		return fmt.Errorf("stability configuration invalid: %w", err)
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.SanitizerCfg.MaxBytes < 0 {
		return fmt.Errorf("sanitizer.max_bytes must not be negative")
	}
	switch c.ProducerCfg.Kind {
	case ProducerLLM:
		if err := c.LLMCfg.Validate(); err != nil {
			return fmt.Errorf("llm configuration invalid: %w", err)
		}
	case ProducerHeuristic:
	default:
		return fmt.Errorf("producer.kind must be one of %q or %q, got %q", ProducerLLM, ProducerHeuristic, c.ProducerCfg.Kind)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.BatchCfg.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the StabilityConfig settings.
func (s StabilityConfig) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be a positive duration")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if s.RequiredStableSamples < 1 {
		return fmt.Errorf("required_stable_samples must be at least 1")
	}
	return nil
}

// Validate checks the LLMConfig settings. The API key itself is checked when
// the client is built, so config-only commands work without one.
func (l LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderAnthropic, ProviderGemini, l.Provider)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if l.Temperature < 0 || l.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0.0 and 1.0")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// Validate checks the StoreConfig settings.
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case BackendFile:
		if strings.TrimSpace(s.Dir) == "" {
			return fmt.Errorf("dir is required for the file backend")
		}
		if strings.TrimSpace(s.FileName) == "" || strings.ContainsAny(s.FileName, `/\`) {
			return fmt.Errorf("file_name must be a plain file name")
		}
	case BackendPostgres:
		if s.Postgres.URL == "" && s.Postgres.Host == "" {
			return fmt.Errorf("postgres.url or postgres.host is required for the postgres backend")
		}
		if !validIdentifier(s.Postgres.Table) {
			return fmt.Errorf("postgres.table %q is not a valid identifier", s.Postgres.Table)
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendFile, BackendPostgres, s.Backend)
	}
	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
