// Package config loads service configuration from an optional YAML file, a
// .env file and the environment, in increasing order of precedence.
//
// Secrets are moved into memguard enclaves as soon as they are read. A
// missing secret is not a load error: request handlers report it per request
// so that a misconfigured deployment fails loudly instead of silently
// accepting every caller.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jmcleod/pushlog/internal/util"
)

// Ledger backends.
const (
	LedgerNone     = "none"
	LedgerMemory   = "memory"
	LedgerBolt     = "bbolt"
	LedgerPostgres = "postgres"
)

const (
	DefaultListen         = ":8080"
	DefaultWebhookMethod  = http.MethodGet
	DefaultWebhookTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Values is the plain form of the configuration as read from YAML and the
// environment.
type Values struct {
	Passcode     string `yaml:"passcode" env:"PUSHUP_PASSCODE"`
	PasscodeHash string `yaml:"passcode_hash" env:"PUSHUP_PASSCODE_HASH"`
	CookieSecret string `yaml:"cookie_secret" env:"PUSHUP_COOKIE_SECRET"`

	WebhookURL              string        `yaml:"webhook_url" env:"PUSHUP_WEBHOOK_URL"`
	WebhookMethod           string        `yaml:"webhook_method" env:"PUSHUP_WEBHOOK_METHOD"`
	WebhookRequireJSON      bool          `yaml:"webhook_require_json" env:"PUSHUP_WEBHOOK_REQUIRE_JSON"`
	WebhookTimeout          time.Duration `yaml:"webhook_timeout" env:"PUSHUP_WEBHOOK_TIMEOUT"`
	WebhookMaxResponseBytes int64         `yaml:"webhook_max_response_bytes" env:"PUSHUP_WEBHOOK_MAX_RESPONSE_BYTES"`

	AuditWebhookURL        string `yaml:"audit_webhook_url" env:"PUSHUP_AUDIT_WEBHOOK_URL"`
	AuditWebhookAuthHeader string `yaml:"audit_webhook_auth_header" env:"PUSHUP_AUDIT_WEBHOOK_AUTH_HEADER"`

	Ledger           string `yaml:"ledger" env:"PUSHUP_LEDGER"`
	LedgerDSN        string `yaml:"ledger_dsn" env:"PUSHUP_LEDGER_DSN"`
	LedgerMaxEntries int    `yaml:"ledger_max_entries" env:"PUSHUP_LEDGER_MAX_ENTRIES"`

	Listen    string `yaml:"listen" env:"PUSHUP_LISTEN"`
	LogLevel  string `yaml:"log_level" env:"PUSHUP_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"PUSHUP_LOG_FORMAT"`
}

// Config is the validated configuration handed to the API and CLI.
type Config struct {
	Passcode     *Secret
	PasscodeHash *Secret
	CookieSecret *Secret

	WebhookURL              string
	WebhookMethod           string
	WebhookRequireJSON      bool
	WebhookTimeout          time.Duration
	WebhookMaxResponseBytes int64 // zero means relay.DefaultMaxBodySize

	AuditWebhookURL        string
	AuditWebhookAuthHeader string

	Ledger           string
	LedgerDSN        string
	LedgerMaxEntries int

	Listen    string
	LogLevel  string
	LogFormat string
}

// Load reads .env from the working directory (if present), then the YAML
// file at path (if path is non-empty), then the environment.
func Load(path string) (*Config, error) {
	// The .env file is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrParsingConfig, err)
	}

	var v Values
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParsingConfig, path, err)
		}
	}

	if err := env.Parse(&v); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	return New(v)
}

// New applies defaults to v, validates it and seals its secrets.
func New(v Values) (*Config, error) {
	v.applyDefaults()
	if err := v.validate(); err != nil {
		return nil, err
	}
	return &Config{
		Passcode:                NewSecret(v.Passcode),
		PasscodeHash:            NewSecret(v.PasscodeHash),
		CookieSecret:            NewSecret(v.CookieSecret),
		WebhookURL:              v.WebhookURL,
		WebhookMethod:           v.WebhookMethod,
		WebhookRequireJSON:      v.WebhookRequireJSON,
		WebhookTimeout:          v.WebhookTimeout,
		WebhookMaxResponseBytes: v.WebhookMaxResponseBytes,
		AuditWebhookURL:         v.AuditWebhookURL,
		AuditWebhookAuthHeader:  v.AuditWebhookAuthHeader,
		Ledger:                  v.Ledger,
		LedgerDSN:               v.LedgerDSN,
		LedgerMaxEntries:        v.LedgerMaxEntries,
		Listen:                  v.Listen,
		LogLevel:                v.LogLevel,
		LogFormat:               v.LogFormat,
	}, nil
}

// HasPasscode reports whether either passcode form is configured.
func (c *Config) HasPasscode() bool {
	return c.Passcode.IsSet() || c.PasscodeHash.IsSet()
}

func (v *Values) applyDefaults() {
	v.WebhookMethod = strings.ToUpper(strings.TrimSpace(v.WebhookMethod))
	if v.WebhookMethod == "" {
		v.WebhookMethod = DefaultWebhookMethod
	}
	if v.WebhookTimeout == 0 {
		v.WebhookTimeout = DefaultWebhookTimeout
	}
	v.Ledger = strings.ToLower(strings.TrimSpace(v.Ledger))
	if v.Ledger == "" {
		v.Ledger = LedgerNone
	}
	if v.Listen == "" {
		v.Listen = DefaultListen
	}
	if v.LogLevel == "" {
		v.LogLevel = DefaultLogLevel
	}
	v.LogFormat = strings.ToLower(v.LogFormat)
	if v.LogFormat == "" {
		v.LogFormat = DefaultLogFormat
	}
}

func (v *Values) validate() error {
	if v.PasscodeHash != "" {
		if err := util.CheckArgon2idHash(v.PasscodeHash); err != nil {
			return fmt.Errorf("%w: passcode_hash: %v", ErrInvalidConfig, err)
		}
	}
	if v.WebhookURL != "" {
		if err := validateHTTPURL(v.WebhookURL); err != nil {
			return fmt.Errorf("%w: webhook_url: %v", ErrInvalidConfig, err)
		}
	}
	if v.AuditWebhookURL != "" {
		if err := validateHTTPURL(v.AuditWebhookURL); err != nil {
			return fmt.Errorf("%w: audit_webhook_url: %v", ErrInvalidConfig, err)
		}
	}
	switch v.WebhookMethod {
	case http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("%w: webhook_method must be GET or POST, got %q", ErrInvalidConfig, v.WebhookMethod)
	}
	if v.WebhookTimeout < 0 {
		return fmt.Errorf("%w: webhook_timeout must be positive", ErrInvalidConfig)
	}
	if v.WebhookMaxResponseBytes < 0 {
		return fmt.Errorf("%w: webhook_max_response_bytes must not be negative", ErrInvalidConfig)
	}
	switch v.Ledger {
	case LedgerNone, LedgerMemory:
	case LedgerBolt, LedgerPostgres:
		if v.LedgerDSN == "" {
			return fmt.Errorf("%w: ledger %q requires ledger_dsn", ErrInvalidConfig, v.Ledger)
		}
	default:
		return fmt.Errorf("%w: unknown ledger backend %q", ErrInvalidConfig, v.Ledger)
	}
	if v.LedgerMaxEntries < 0 {
		return fmt.Errorf("%w: ledger_max_entries must not be negative", ErrInvalidConfig)
	}
	switch v.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format must be json or text, got %q", ErrInvalidConfig, v.LogFormat)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
