// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
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
	Forms() FormsConfig
	Engine() EngineConfig
	Store() StoreConfig
	Server() ServerConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetEngineWorkerConcurrency(int)
	SetFormsStrictAnswers(bool)
	SetServerAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerConfig  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserConfig BrowserConfig `mapstructure:"browser" yaml:"browser"`
	FormsConfig   FormsConfig   `mapstructure:"forms" yaml:"forms"`
	EngineConfig  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	StoreConfig   StoreConfig   `mapstructure:"store" yaml:"store"`
	ServerConfig  ServerConfig  `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerConfig }
func (c *Config) Browser() BrowserConfig { return c.BrowserConfig }
func (c *Config) Forms() FormsConfig     { return c.FormsConfig }
func (c *Config) Engine() EngineConfig   { return c.EngineConfig }
func (c *Config) Store() StoreConfig     { return c.StoreConfig }
func (c *Config) Server() ServerConfig   { return c.ServerConfig }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserConfig.Headless = b }
func (c *Config) SetEngineWorkerConcurrency(n int) { c.EngineConfig.WorkerConcurrency = n }
func (c *Config) SetFormsStrictAnswers(b bool)     { c.FormsConfig.StrictAnswers = b }
func (c *Config) SetServerAddr(addr string)        { c.ServerConfig.Addr = addr }

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

// BrowserConfig holds settings for the browser instance each run launches.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// FormsConfig tunes how the runner drives the survey pages.
type FormsConfig struct {
	// ElementTimeout bounds each interaction strategy's wait for its element.
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PageSettle     time.Duration `mapstructure:"page_settle" yaml:"page_settle"`
	LoadWait       time.Duration `mapstructure:"load_wait" yaml:"load_wait"`
	// StrictAnswers rejects section answer lists whose length differs from the
	// section's row count instead of padding/truncating them.
	StrictAnswers bool `mapstructure:"strict_answers" yaml:"strict_answers"`
	// ChannelMatchThreshold enables Jaro-Winkler matching of complaint channel
	// names that fail the substring match. Zero disables it.
	ChannelMatchThreshold float64           `mapstructure:"channel_match_threshold" yaml:"channel_match_threshold"`
	URLs                  map[string]string `mapstructure:"urls" yaml:"urls"`
}

// EngineConfig configures the job processing engine.
type EngineConfig struct {
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	SoftTimeLimit     time.Duration `mapstructure:"soft_time_limit" yaml:"soft_time_limit"`
	HardTimeLimit     time.Duration `mapstructure:"hard_time_limit" yaml:"hard_time_limit"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	LaunchRate        float64       `mapstructure:"launch_rate" yaml:"launch_rate"`
	LaunchBurst       int           `mapstructure:"launch_burst" yaml:"launch_burst"`
}

// StoreConfig selects and configures the job store backend.
type StoreConfig struct {
	Backend   string         `mapstructure:"backend" yaml:"backend"`
	ResultTTL time.Duration  `mapstructure:"result_ttl" yaml:"result_ttl"`
	Postgres  PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis     RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// PostgresConfig holds the database connection details.
type PostgresConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RedisConfig holds the Redis connection details.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"-"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "formrunner")
	v.SetDefault("logger.log_file", "formrunner.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Forms --
	v.SetDefault("forms.element_timeout", "10s")
	v.SetDefault("forms.settle_delay", "300ms")
	v.SetDefault("forms.page_settle", "1s")
	v.SetDefault("forms.load_wait", "3s")
	v.SetDefault("forms.strict_answers", false)
	v.SetDefault("forms.channel_match_threshold", 0.0)

	// -- Engine --
	v.SetDefault("engine.queue_size", 100)
	v.SetDefault("engine.worker_concurrency", 1)
	v.SetDefault("engine.soft_time_limit", "25m")
	v.SetDefault("engine.hard_time_limit", "30m")
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_backoff", "60s")
	v.SetDefault("engine.launch_rate", 1.0)
	v.SetDefault("engine.launch_burst", 1)

	// -- Store --
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.result_ttl", "1h")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "formrunner:")

	// -- Server --
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.postgres.url", "FORMRUNNER_DATABASE_URL")
	_ = v.BindEnv("store.redis.password", "FORMRUNNER_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StoreConfig.Redis.Password == "" {
		cfg.StoreConfig.Redis.Password = os.Getenv("FORMRUNNER_REDIS_PASSWORD")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading '~' in filesystem settings.
func (c *Config) expandPaths() error {
	var err error
	if c.LoggerConfig.LogFile, err = homedir.Expand(c.LoggerConfig.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	if c.BrowserConfig.UserDataDir, err = homedir.Expand(c.BrowserConfig.UserDataDir); err != nil {
		return fmt.Errorf("failed to expand browser.user_data_dir: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineConfig.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.EngineConfig.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be a positive integer")
	}
	if c.EngineConfig.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries cannot be negative")
	}
	if c.EngineConfig.SoftTimeLimit > 0 && c.EngineConfig.HardTimeLimit > 0 &&
		c.EngineConfig.SoftTimeLimit > c.EngineConfig.HardTimeLimit {
		return fmt.Errorf("engine.soft_time_limit (%v) must not exceed engine.hard_time_limit (%v)",
			c.EngineConfig.SoftTimeLimit, c.EngineConfig.HardTimeLimit)
	}
	if c.FormsConfig.ChannelMatchThreshold < 0 || c.FormsConfig.ChannelMatchThreshold > 1 {
		return fmt.Errorf("forms.channel_match_threshold must be between 0.0 and 1.0")
	}
	if err := c.StoreConfig.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store backend selection.
func (s *StoreConfig) Validate() error {
	switch strings.ToLower(s.Backend) {
	case BackendMemory:
	case BackendPostgres:
		if s.Postgres.URL == "" {
			return fmt.Errorf("postgres url is required (hint: check FORMRUNNER_DATABASE_URL)")
		}
	case BackendRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unknown backend %q (expected memory, postgres or redis)", s.Backend)
	}
	if s.ResultTTL < 0 {
		return fmt.Errorf("result_ttl cannot be negative")
	}
	return nil
}
