package util

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrDecode is returned when a base64url string cannot be decoded.
var ErrDecode = errors.New("invalid base64url encoding")

// strictURLEncoding rejects non-zero trailing bits so that every byte
// sequence has exactly one accepted encoding.
var strictURLEncoding = base64.URLEncoding.Strict()

// Normalize returns s in Unicode normalization form C.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Base64URLEncode encodes b with the url-safe alphabet and no '=' padding.
func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Base64URLDecode reverses Base64URLEncode. Padding is restored before
// decoding, so both padded and unpadded input are accepted.
func Base64URLDecode(s string) ([]byte, error) {
	if len(s)%4 == 1 {
		return nil, fmt.Errorf("%w: impossible length %d", ErrDecode, len(s))
	}
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	b, err := strictURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}
