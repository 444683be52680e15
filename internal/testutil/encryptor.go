package testutil

import (
	"dsum-go/internal/dsum"
	"dsum-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() dsum.Encryptor {
	return encryption.NewTestEncryptor()
}
