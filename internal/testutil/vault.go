package testutil

import (
	"dsum-go/internal/dsum"
	"dsum-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() dsum.Vault {
	return vault.NewMemoryVault("test-vault")
}
