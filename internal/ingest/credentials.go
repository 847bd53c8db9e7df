package ingest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefix    = "dk_"
	secretPrefix = "ds_"
)

// Credentials is a freshly generated device key/secret pair.
// Secret is only ever shown once; SecretHash is what gets stored.
type Credentials struct {
	Key        string
	Secret     string
	SecretHash string
}

// NewCredentials generates a device key (dk_ + 32 hex chars) and secret
// (ds_ + 48 hex chars) and hashes the secret with bcrypt.
func NewCredentials() (*Credentials, error) {
	key, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	secret, err := randomHex(24)
	if err != nil {
		return nil, err
	}
	c := &Credentials{Key: keyPrefix + key, Secret: secretPrefix + secret}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing device secret: %w", err)
	}
	c.SecretHash = string(hash)
	return c, nil
}

func keysMatch(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
