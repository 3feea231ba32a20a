package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
)

// ErrSecretNotSet is returned by Secret.Use when no value was configured.
var ErrSecretNotSet = errors.New("secret not set")

// Secret holds a configured secret in an encrypted memguard enclave. The
// plaintext only exists in locked memory for the duration of Use.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals s into an enclave. An empty s yields an unset Secret.
func NewSecret(s string) *Secret {
	if s == "" {
		return &Secret{}
	}
	// NewEnclave wipes its input, so hand it a private copy.
	return &Secret{enclave: memguard.NewEnclave([]byte(s))}
}

// IsSet reports whether the secret holds a value.
func (s *Secret) IsSet() bool {
	return s != nil && s.enclave != nil
}

// Use opens the enclave and passes the plaintext to fn. The slice is
// destroyed when fn returns and must not be retained.
func (s *Secret) Use(fn func(b []byte) error) error {
	if !s.IsSet() {
		return ErrSecretNotSet
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (s *Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return "[redacted]"
}

// LogValue keeps secrets out of structured logs.
func (s *Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}
