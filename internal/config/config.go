// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Harness HarnessConfig `mapstructure:"harness" yaml:"harness"`
	Seed    SeedConfig    `mapstructure:"seed" yaml:"seed"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// Optional rotating log file. Empty disables file output.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the headless browser process.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache    bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	Args            []string `mapstructure:"args" yaml:"args"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// PostLoadWait is the settle time after navigation, approximating
	// network quiescence.
	PostLoadWait time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// HarnessConfig controls the authentication orchestrator.
type HarnessConfig struct {
	// BaseURL of the application under test, e.g. http://localhost:3000.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// SessionDir holds one JSON file per session name. Supports "~".
	SessionDir string `mapstructure:"session_dir" yaml:"session_dir"`

	// SessionTokenCookie names the cookie inspected for the expiry
	// fast-path when restoring a stored session.
	SessionTokenCookie string `mapstructure:"session_token_cookie" yaml:"session_token_cookie"`

	// CallbackPath is matched by substring against response URLs after
	// the submit click.
	CallbackPath string `mapstructure:"callback_path" yaml:"callback_path"`

	SignInPath     string `mapstructure:"sign_in_path" yaml:"sign_in_path"`
	ErrorPath      string `mapstructure:"error_path" yaml:"error_path"`
	VerifyPath     string `mapstructure:"verify_path" yaml:"verify_path"`
	SessionAPIPath string `mapstructure:"session_api_path" yaml:"session_api_path"`

	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
	CallbackTimeout   time.Duration `mapstructure:"callback_timeout" yaml:"callback_timeout"`
	ErrorPageTimeout  time.Duration `mapstructure:"error_page_timeout" yaml:"error_page_timeout"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`

	// Per-field fill retry policy.
	FillAttempts   int           `mapstructure:"fill_attempts" yaml:"fill_attempts"`
	FillRetryDelay time.Duration `mapstructure:"fill_retry_delay" yaml:"fill_retry_delay"`

	// Rate limit for the credential verification endpoint.
	VerifyRPS   float64 `mapstructure:"verify_rps" yaml:"verify_rps"`
	VerifyBurst int     `mapstructure:"verify_burst" yaml:"verify_burst"`
}

// SeedConfig controls the pre-run fixture user seeding.
type SeedConfig struct {
	// DatabaseURL enables the direct-Postgres fallback when the
	// application's test-setup endpoint is unavailable.
	DatabaseURL string     `mapstructure:"database_url" yaml:"database_url"`
	Users       []SeedUser `mapstructure:"users" yaml:"users"`
}

// SeedUser is one fixture credential that must exist before tests run.
type SeedUser struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"password"`
	Verified bool   `mapstructure:"verified" yaml:"verified"`
}

// SetDefaults registers every knob's default on the given viper instance.
// The timing values mirror the behaviour of the UI flows this harness
// automates: 2s field visibility, 500ms fill retry delay, 15s callback wait,
// 10s error-page wait.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "authharness")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.post_load_wait", 300*time.Millisecond)

	v.SetDefault("harness.base_url", "http://localhost:3000")
	v.SetDefault("harness.session_dir", "./.authharness-sessions")
	v.SetDefault("harness.session_token_cookie", "next-auth.session-token")
	v.SetDefault("harness.callback_path", "/api/auth/callback/credentials")
	v.SetDefault("harness.sign_in_path", "/auth/signin")
	v.SetDefault("harness.error_path", "/auth/error")
	v.SetDefault("harness.verify_path", "/api/auth/verify")
	v.SetDefault("harness.session_api_path", "/api/auth/session")
	v.SetDefault("harness.visibility_timeout", 2*time.Second)
	v.SetDefault("harness.callback_timeout", 15*time.Second)
	v.SetDefault("harness.error_page_timeout", 10*time.Second)
	v.SetDefault("harness.probe_timeout", 5*time.Second)
	v.SetDefault("harness.fill_attempts", 3)
	v.SetDefault("harness.fill_retry_delay", 500*time.Millisecond)
	v.SetDefault("harness.verify_rps", 2.0)
	v.SetDefault("harness.verify_burst", 4)
}

// Load reads the configuration from file (optional), environment and
// defaults, in the usual precedence order.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUTHHARNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize expands and validates fields after unmarshalling.
func (c *Config) Normalize() error {
	dir, err := homedir.Expand(c.Harness.SessionDir)
	if err != nil {
		return fmt.Errorf("invalid session_dir %q: %w", c.Harness.SessionDir, err)
	}
	c.Harness.SessionDir = filepath.Clean(dir)

	c.Harness.BaseURL = strings.TrimRight(c.Harness.BaseURL, "/")
	if c.Harness.FillAttempts < 1 {
		c.Harness.FillAttempts = 1
	}
	return nil
}

// Default returns a configuration populated with all defaults, without
// touching the global viper state. Intended for tests and embedding.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	_ = cfg.Normalize()
	return &cfg
}
