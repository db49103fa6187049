package db

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// keySeparator sorts below every printable character, so a joined prefix
// always orders before any longer string sharing it.
const keySeparator = "\x1f"

// keyAlphabet is the URL-safe base64 alphabet rearranged into ASCII order.
// Encoded keys therefore compare the same way as the bytes they encode.
const keyAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

var keyEncoding = base64.NewEncoding(keyAlphabet).WithPadding(base64.NoPadding)

// CompositeKey joins parts into a single URL-safe identifier. The result is
// deterministic, sensitive to part order, and preserves the byte-wise ordering
// of the joined parts.
func CompositeKey(parts ...string) string {
	return keyEncoding.EncodeToString([]byte(strings.Join(parts, keySeparator)))
}

// DecodeCompositeKey reverses CompositeKey.
func DecodeCompositeKey(key string) ([]string, error) {
	raw, err := keyEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode composite key: %w", err)
	}
	return strings.Split(string(raw), keySeparator), nil
}

// GenerateContentHash returns the hex SHA-256 digest of content.
func GenerateContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
