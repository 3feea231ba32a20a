package util

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestArgon2id(t *testing.T) {
	params := DefaultArgon2idParams()
	passphrase := "correct horse battery staple"
	salt := []byte("random salt")

	key, err := DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}

	if len(key) != 32 {
		t.Errorf("expected key length 32, got %d", len(key))
	}

	match, err := CompareArgon2idKey(passphrase, salt, params, key)
	if err != nil {
		t.Fatalf("CompareArgon2idKey failed: %v", err)
	}
	if !match {
		t.Error("expected CompareArgon2idKey to return true")
	}

	match, _ = CompareArgon2idKey("wrong passphrase", salt, params, key)
	if match {
		t.Error("expected CompareArgon2idKey to return false for wrong passphrase")
	}
}

func TestArgon2idEncodedHash(t *testing.T) {
	encoded, err := EncodeArgon2idHash("correct", DefaultArgon2idParams())
	if err != nil {
		t.Fatalf("EncodeArgon2idHash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "argon2id$v=19$m=65536,t=3,p=4$") {
		t.Errorf("unexpected encoding prefix: %s", encoded)
	}

	ok, err := VerifyArgon2idHash("correct", encoded)
	if err != nil {
		t.Fatalf("VerifyArgon2idHash failed: %v", err)
	}
	if !ok {
		t.Error("expected matching passphrase to verify")
	}

	ok, err = VerifyArgon2idHash("wrong", encoded)
	if err != nil {
		t.Fatalf("VerifyArgon2idHash failed: %v", err)
	}
	if ok {
		t.Error("expected wrong passphrase to fail")
	}

	other, err := EncodeArgon2idHash("correct", DefaultArgon2idParams())
	if err != nil {
		t.Fatalf("EncodeArgon2idHash failed: %v", err)
	}
	if other == encoded {
		t.Error("expected a fresh salt per encoding")
	}
}

func TestParseArgon2idHash_Invalid(t *testing.T) {
	cases := []string{
		"",
		"bcrypt$foo",
		"argon2id$v=18$m=65536,t=3,p=4$c2FsdA$a2V5",
		"argon2id$v=19$m=x,t=3,p=4$c2FsdA$a2V5",
		"argon2id$v=19$m=65536,t=3,p=0$c2FsdA$a2V5",
		"argon2id$v=19$m=65536,t=3,p=4$!!!$a2V5",
	}
	for _, c := range cases {
		if _, _, _, err := ParseArgon2idHash(c); !errors.Is(err, ErrInvalidArgon2idHash) {
			t.Errorf("ParseArgon2idHash(%q) error = %v, want ErrInvalidArgon2idHash", c, err)
		}
	}
}

func TestValidateArgon2idParams(t *testing.T) {
	if err := ValidateArgon2idParams(DefaultArgon2idParams()); err != nil {
		t.Errorf("default params should validate: %v", err)
	}
	weak := DefaultArgon2idParams()
	weak.MemoryKiB = 1024
	if err := ValidateArgon2idParams(weak); err == nil {
		t.Error("expected low memory to be rejected")
	}
	weak = DefaultArgon2idParams()
	weak.KeyLen = 16
	if err := ValidateArgon2idParams(weak); err == nil {
		t.Error("expected short key to be rejected")
	}
}

func TestArgon2idHash_WeakParams(t *testing.T) {
	tail := "$" + Base64URLEncode(make([]byte, 16)) + "$" + Base64URLEncode(make([]byte, 32))
	for _, encoded := range []string{
		"argon2id$v=19$m=19456,t=0,p=1" + tail,
		"argon2id$v=19$m=1024,t=1,p=1" + tail,
	} {
		if err := CheckArgon2idHash(encoded); !errors.Is(err, ErrInvalidArgon2idHash) {
			t.Errorf("CheckArgon2idHash(%q) error = %v, want ErrInvalidArgon2idHash", encoded, err)
		}
		// Must return an error rather than reach argon2.IDKey.
		if _, err := VerifyArgon2idHash("x", encoded); !errors.Is(err, ErrInvalidArgon2idHash) {
			t.Errorf("VerifyArgon2idHash(%q) error = %v, want ErrInvalidArgon2idHash", encoded, err)
		}
	}

	good, err := EncodeArgon2idHash("x", Argon2idParams{Time: 1, MemoryKiB: 19 * 1024, Parallelism: 1, KeyLen: 32})
	if err != nil {
		t.Fatalf("EncodeArgon2idHash failed: %v", err)
	}
	if err := CheckArgon2idHash(good); err != nil {
		t.Errorf("CheckArgon2idHash rejected a valid hash: %v", err)
	}
}

func TestBytes(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}

	WipeBytes(a)
	if !bytes.Equal(a, []byte{0, 0, 0}) {
		t.Errorf("WipeBytes left %v", a)
	}
}

func TestEncoding(t *testing.T) {
	s := "test string"
	encoded := HexEncode([]byte(s))
	decoded, err := HexDecode(encoded)
	if err != nil {
		t.Fatalf("HexDecode failed: %v", err)
	}
	if string(decoded) != s {
		t.Errorf("expected %s, got %s", s, string(decoded))
	}

	normalized := Normalize("cafe\u0301") // é in NFD
	if normalized != "caf\u00e9" {
		t.Errorf("Normalize failed, got %q", normalized)
	}
}

func TestBase64URL(t *testing.T) {
	t.Run("alphabet and padding", func(t *testing.T) {
		// 0xfb 0xff encodes to "+/8=" in the standard alphabet.
		if got := Base64URLEncode([]byte{0xfb, 0xff}); got != "-_8" {
			t.Errorf("Base64URLEncode = %q, want %q", got, "-_8")
		}
		if got := Base64URLEncode(nil); got != "" {
			t.Errorf("Base64URLEncode(nil) = %q, want empty", got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		for n := 0; n < 40; n++ {
			in := make([]byte, n)
			for i := range in {
				in[i] = byte(i*37 + n)
			}
			out, err := Base64URLDecode(Base64URLEncode(in))
			if err != nil {
				t.Fatalf("Base64URLDecode failed for %d bytes: %v", n, err)
			}
			if !bytes.Equal(in, out) {
				t.Errorf("round trip mismatch for %d bytes", n)
			}
		}
	})

	t.Run("padded input", func(t *testing.T) {
		out, err := Base64URLDecode("YQ==")
		if err != nil {
			t.Fatalf("Base64URLDecode failed: %v", err)
		}
		if string(out) != "a" {
			t.Errorf("got %q, want %q", out, "a")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, s := range []string{"a", "abcde", "ab+c", "ab/c", "a$bc", "YR"} {
			if _, err := Base64URLDecode(s); !errors.Is(err, ErrDecode) {
				t.Errorf("Base64URLDecode(%q) error = %v, want ErrDecode", s, err)
			}
		}
	})
}

func TestRandom(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b2, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(b1) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("RandomBytes should produce different outputs")
	}
}
