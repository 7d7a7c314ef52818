// Package auth provides authentication-related utilities and types
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// API keys are issued as "mv_" followed by 48 hex characters (192 bits
// of entropy). The fixed prefix lets operators spot leaked keys in logs
// and lets secret scanners match them with a cheap pattern.
const apiKeyPrefix = "mv_"

var apiKeyPattern = regexp.MustCompile(`^mv_[a-f0-9]{48}$`)

// GenerateAPIKey generates a new prefixed API key
func GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, 24)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(randomBytes), nil
}

// ValidateAPIKeyFormat reports whether a key matches the issued format.
// Format validation happens before any database lookup so malformed
// credentials are rejected without touching storage.
func ValidateAPIKeyFormat(apiKey string) bool {
	return apiKeyPattern.MatchString(apiKey)
}

// MaskAPIKey returns a loggable form of a key: prefix plus the first
// four hex characters
func MaskAPIKey(apiKey string) string {
	if !strings.HasPrefix(apiKey, apiKeyPrefix) || len(apiKey) < len(apiKeyPrefix)+4 {
		return "invalid"
	}
	return apiKey[:len(apiKeyPrefix)+4] + "..."
}

// HashAPIKey hashes an API key for storage
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
