package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/pushlog/internal/util"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pushlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func secretString(t *testing.T, s *Secret) string {
	t.Helper()
	var out string
	require.NoError(t, s.Use(func(b []byte) error {
		out = string(b)
		return nil
	}))
	return out
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfigFile(t, `
passcode: correct
cookie_secret: file-secret
webhook_url: https://script.example.com/exec
webhook_method: post
webhook_timeout: 3s
ledger: bbolt
ledger_dsn: /tmp/ledger.db
ledger_max_entries: 50
listen: 127.0.0.1:9000
log_level: debug
log_format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "correct", secretString(t, cfg.Passcode))
	assert.Equal(t, "file-secret", secretString(t, cfg.CookieSecret))
	assert.False(t, cfg.PasscodeHash.IsSet())
	assert.Equal(t, "https://script.example.com/exec", cfg.WebhookURL)
	assert.Equal(t, "POST", cfg.WebhookMethod)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, LedgerBolt, cfg.Ledger)
	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerDSN)
	assert.Equal(t, 50, cfg.LedgerMaxEntries)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
passcode: from-file
cookie_secret: from-file
webhook_url: https://file.example.com/hook
`)
	t.Setenv("PUSHUP_PASSCODE", "from-env")
	t.Setenv("PUSHUP_WEBHOOK_URL", "https://env.example.com/hook")
	t.Setenv("PUSHUP_WEBHOOK_TIMEOUT", "250ms")
	t.Setenv("PUSHUP_WEBHOOK_REQUIRE_JSON", "true")
	t.Setenv("PUSHUP_WEBHOOK_MAX_RESPONSE_BYTES", "4096")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", secretString(t, cfg.Passcode))
	assert.Equal(t, "from-file", secretString(t, cfg.CookieSecret))
	assert.Equal(t, "https://env.example.com/hook", cfg.WebhookURL)
	assert.Equal(t, 250*time.Millisecond, cfg.WebhookTimeout)
	assert.True(t, cfg.WebhookRequireJSON)
	assert.Equal(t, int64(4096), cfg.WebhookMaxResponseBytes)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("PUSHUP_COOKIE_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-secret", secretString(t, cfg.CookieSecret))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfigFile(t, "passcode: [unterminated")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("PUSHUP_WEBHOOK_TIMEOUT", "soon")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestNew_Defaults(t *testing.T) {
	cfg, err := New(Values{})
	require.NoError(t, err)

	assert.Equal(t, DefaultWebhookMethod, cfg.WebhookMethod)
	assert.Equal(t, DefaultWebhookTimeout, cfg.WebhookTimeout)
	assert.Equal(t, LedgerNone, cfg.Ledger)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)

	// Missing secrets are reported per request, not at load time.
	assert.False(t, cfg.HasPasscode())
	assert.False(t, cfg.CookieSecret.IsSet())
	assert.Empty(t, cfg.WebhookURL)
}

func TestNew_Validation(t *testing.T) {
	hashTail := "$" + util.Base64URLEncode(make([]byte, 16)) + "$" + util.Base64URLEncode(make([]byte, 32))
	cases := map[string]Values{
		"relative webhook url":   {WebhookURL: "/exec"},
		"ftp webhook url":        {WebhookURL: "ftp://example.com/x"},
		"bad audit url":          {AuditWebhookURL: "not a url"},
		"unsupported method":     {WebhookMethod: "PUT"},
		"negative timeout":       {WebhookTimeout: -time.Second},
		"negative response cap":  {WebhookMaxResponseBytes: -1},
		"unknown ledger":         {Ledger: "redis"},
		"bbolt without dsn":      {Ledger: LedgerBolt},
		"postgres without dsn":   {Ledger: LedgerPostgres},
		"negative max entries":   {LedgerMaxEntries: -1},
		"unsupported log format": {LogFormat: "xml"},
		"unparsable hash":        {PasscodeHash: "argon2id$..."},
		"zero-round hash":        {PasscodeHash: "argon2id$v=19$m=19456,t=0,p=1" + hashTail},
		"weak memory hash":       {PasscodeHash: "argon2id$v=19$m=8,t=1,p=1" + hashTail},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(v)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestHasPasscode(t *testing.T) {
	hash, err := util.EncodeArgon2idHash("p", util.Argon2idParams{Time: 1, MemoryKiB: 19 * 1024, Parallelism: 1, KeyLen: 32})
	require.NoError(t, err)

	cfg, err := New(Values{PasscodeHash: hash})
	require.NoError(t, err)
	assert.True(t, cfg.HasPasscode())

	cfg, err = New(Values{Passcode: "p"})
	require.NoError(t, err)
	assert.True(t, cfg.HasPasscode())
}

func TestSecret(t *testing.T) {
	s := NewSecret("hunter2")
	assert.True(t, s.IsSet())
	assert.Equal(t, "hunter2", secretString(t, s))
	// Opening twice must work: the enclave is not consumed.
	assert.Equal(t, "hunter2", secretString(t, s))
	assert.Equal(t, "[redacted]", s.String())

	empty := NewSecret("")
	assert.False(t, empty.IsSet())
	assert.ErrorIs(t, empty.Use(func([]byte) error { return nil }), ErrSecretNotSet)

	var nilSecret *Secret
	assert.False(t, nilSecret.IsSet())
	assert.ErrorIs(t, nilSecret.Use(func([]byte) error { return nil }), ErrSecretNotSet)
}

func TestSecret_NotLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "cookie_secret", NewSecret("very-secret-value"))

	assert.NotContains(t, buf.String(), "very-secret-value")
	assert.Contains(t, buf.String(), "[redacted]")
}
