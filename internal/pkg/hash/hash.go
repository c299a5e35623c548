// Package hash provides hashing utilities for cache keys and content fingerprints.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// StableKey serializes v as JSON and hashes it. Struct fields marshal in
// declaration order and map keys are sorted by encoding/json, so equal
// values always produce equal keys.
func StableKey(prefix string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serializing cache key: %w", err)
	}
	return prefix + SHA256Short(data, 32), nil
}
