package util

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idSaltLen = 16

// ErrInvalidArgon2idHash is returned when an encoded hash cannot be parsed.
var ErrInvalidArgon2idHash = errors.New("invalid argon2id hash")

type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// ValidateArgon2idParams rejects parameters too weak to be worth storing.
func ValidateArgon2idParams(p Argon2idParams) error {
	if p.Time < 1 {
		return fmt.Errorf("argon2id time must be at least 1")
	}
	if p.MemoryKiB < 19*1024 {
		return fmt.Errorf("argon2id memory must be at least 19 MiB, got %d KiB", p.MemoryKiB)
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("argon2id parallelism must be at least 1")
	}
	if p.KeyLen != 32 {
		return fmt.Errorf("argon2id key length must be 32 bytes")
	}
	return nil
}

func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if params.KeyLen != 32 {
		return nil, fmt.Errorf("argon2id key length must be 32 bytes")
	}
	key := argon2.IDKey([]byte(passphrase), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	return key, nil
}

func CompareArgon2idKey(passphrase string, salt []byte, params Argon2idParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

// EncodeArgon2idHash derives a key for passphrase with a fresh random salt
// and returns it as
//
//	argon2id$v=19$m=<KiB>,t=<time>,p=<parallelism>$<salt>$<key>
//
// where salt and key are unpadded base64url.
func EncodeArgon2idHash(passphrase string, params Argon2idParams) (string, error) {
	if err := ValidateArgon2idParams(params); err != nil {
		return "", err
	}
	salt, err := RandomBytes(argon2idSaltLen)
	if err != nil {
		return "", err
	}
	key, err := DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.MemoryKiB, params.Time, params.Parallelism,
		Base64URLEncode(salt), Base64URLEncode(key)), nil
}

// ParseArgon2idHash splits an encoded hash produced by EncodeArgon2idHash.
func ParseArgon2idHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	var params Argon2idParams
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return params, nil, nil, ErrInvalidArgon2idHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidArgon2idHash, parts[1])
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Time, &parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("%w: parameters: %v", ErrInvalidArgon2idHash, err)
	}
	if parallelism == 0 || parallelism > 255 {
		return params, nil, nil, fmt.Errorf("%w: parallelism %d out of range", ErrInvalidArgon2idHash, parallelism)
	}
	params.Parallelism = uint8(parallelism)

	salt, err := Base64URLDecode(parts[3])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidArgon2idHash, err)
	}
	key, err := Base64URLDecode(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidArgon2idHash, err)
	}
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}

// CheckArgon2idHash parses encoded and rejects parameters that
// ValidateArgon2idParams would refuse, so that a stored hash can be
// checked before it is ever used to derive a key.
func CheckArgon2idHash(encoded string) error {
	params, _, _, err := ParseArgon2idHash(encoded)
	if err != nil {
		return err
	}
	if err := ValidateArgon2idParams(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgon2idHash, err)
	}
	return nil
}

// VerifyArgon2idHash reports whether passphrase matches the encoded hash.
func VerifyArgon2idHash(passphrase, encoded string) (bool, error) {
	params, salt, key, err := ParseArgon2idHash(encoded)
	if err != nil {
		return false, err
	}
	// argon2.IDKey panics on zero rounds or zero parallelism.
	if err := ValidateArgon2idParams(params); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidArgon2idHash, err)
	}
	return CompareArgon2idKey(passphrase, salt, params, key)
}
