package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. ESTATE_API_BASE_URL.
const EnvPrefix = "ESTATE"

// ClientConfig holds all configuration for the session client and the CLI.
// Tags use mapstructure for Viper unmarshalling.
type ClientConfig struct {
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Submission and notification cooldowns.
	LoginCooldown    time.Duration `mapstructure:"LOGIN_COOLDOWN"`
	RegisterCooldown time.Duration `mapstructure:"REGISTER_COOLDOWN"`
	NotifyCooldown   time.Duration `mapstructure:"NOTIFY_COOLDOWN"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Local state (session cookies, pending redirect sign-ins).
	StateDBPath string `mapstructure:"STATE_DB_PATH"`
	Profile     string `mapstructure:"PROFILE"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	TraceOutput     string `mapstructure:"TRACE_OUTPUT"` // file path, "stderr", or empty to discard

	AuditLog string `mapstructure:"AUDIT_LOG"` // JSON-lines audit trail; empty disables it
}

// LoadConfig reads configuration from file, environment variables, and defaults.
// An explicit configFile takes precedence over the search paths.
func LoadConfig(configFile string) (*ClientConfig, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/estate-auth/")
		v.AddConfigPath("$HOME/.estate-auth")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_BASE_URL", "http://localhost:5000")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("LOGIN_COOLDOWN", 2*time.Second)
	v.SetDefault("REGISTER_COOLDOWN", 3*time.Second)
	v.SetDefault("NOTIFY_COOLDOWN", 3*time.Second)
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("STATE_DB_PATH", "$HOME/.estate-auth/state.db")
	v.SetDefault("PROFILE", "default")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "http://127.0.0.1:8765/callback")
	v.SetDefault("OTEL_SERVICE_NAME", "estatectl")
	v.SetDefault("TRACE_OUTPUT", "")
	v.SetDefault("AUDIT_LOG", "")
}

// Validate checks values that would otherwise fail late and obscurely.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API_BASE_URL %q: must be an absolute URL", c.APIBaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid API_BASE_URL %q: unsupported scheme %q", c.APIBaseURL, u.Scheme)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	for name, d := range map[string]time.Duration{
		"LOGIN_COOLDOWN":    c.LoginCooldown,
		"REGISTER_COOLDOWN": c.RegisterCooldown,
		"NOTIFY_COOLDOWN":   c.NotifyCooldown,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Profile == "" {
		return errors.New("PROFILE must not be empty")
	}
	return nil
}

// GoogleEnabled reports whether federated sign-in with Google is configured.
func (c *ClientConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
