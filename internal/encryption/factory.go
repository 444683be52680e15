package encryption

import (
	"fmt"

	"dsum-go/internal/config"
	"dsum-go/internal/dsum"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" returns a nil Encryptor, which archives snapshots in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (dsum.Encryptor, error) {
	switch cfg.Type {
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeSealer(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
