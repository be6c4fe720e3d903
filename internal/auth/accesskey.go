package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost of 10 balances hashing cost against token-endpoint latency.
	bcryptCost = 10
)

// HashAccessKey generates a bcrypt hash of an identity's API access key.
func HashAccessKey(accessKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(accessKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash access key: %w", err)
	}
	return string(hash), nil
}

// CompareAccessKey compares a bcrypt hash with a plaintext access key.
func CompareAccessKey(hash, accessKey string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(accessKey))
}
