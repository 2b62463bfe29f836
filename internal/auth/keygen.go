package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateAPIKey returns a new opaque bearer token in the platform's
// "sk-<48 hex chars>" format.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + hex.EncodeToString(buf), nil
}
