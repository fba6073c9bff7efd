package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier checks the caller-supplied shared secret on inbound tasks.
// It holds either the plain secret (compared in constant time) or a bcrypt
// hash of it.
type SecretVerifier struct {
	secret     string
	secretHash string
}

// NewSecretVerifier creates a verifier from a plain secret and/or its bcrypt
// hash. The hash takes precedence when both are set.
func NewSecretVerifier(secret, secretHash string) (*SecretVerifier, error) {
	if secret == "" && secretHash == "" {
		return nil, fmt.Errorf("either a secret or a secret hash is required")
	}
	return &SecretVerifier{secret: secret, secretHash: secretHash}, nil
}

// Verify reports whether candidate matches the configured secret.
func (v *SecretVerifier) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	if v.secretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(v.secretHash), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(v.secret), []byte(candidate)) == 1
}
