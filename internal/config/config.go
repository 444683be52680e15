package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dsum.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // debug, info, warn or error
	Scan       ScanConfig       `toml:"scan"`
	Compare    CompareConfig    `toml:"compare"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// ScanConfig holds the defaults for the scan command.
type ScanConfig struct {
	Checksum   string       `toml:"checksum"`
	ReuseSize  bool         `toml:"reuse_size"`
	ReuseMtime bool         `toml:"reuse_mtime"`
	ReuseCtime bool         `toml:"reuse_ctime"`
	Progress   int          `toml:"progress"` // verbosity bitmask
	Ignore     []string     `toml:"ignore"`
	Schema     SchemaConfig `toml:"schema"`
}

// SchemaConfig selects the optional columns of the object table.
type SchemaConfig struct {
	Blocks    bool `toml:"blocks"`
	Device    bool `toml:"device"`
	Extension bool `toml:"extension"`
}

// CompareConfig holds the defaults for the compare command.
type CompareConfig struct {
	Prefix      bool   `toml:"prefix"`
	PrintPrefix bool   `toml:"print_prefix"`
	Titles      bool   `toml:"titles"`
	EncodeNames bool   `toml:"encode_names"`
	Columns     string `toml:"columns"` // comma separated, empty for all
}

// EncryptionConfig holds paths to the age key pair used for archived snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age", "test" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a snapshot archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory" or "filesystem"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// Defaults returns the settings used for anything a config file leaves out.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Scan: ScanConfig{
			Checksum:   "sha256",
			ReuseSize:  true,
			ReuseMtime: true,
			ReuseCtime: true,
			Progress:   0x23,
			Schema:     SchemaConfig{Extension: true},
		},
		Compare: CompareConfig{
			Prefix: true,
			Titles: true,
		},
		Encryption: EncryptionConfig{Type: "none"},
	}
}

// NewConfig creates a new Config with the provided values and default key paths.
func NewConfig(hostID, baseDir string) *Config {
	cfg := Defaults()
	cfg.HostID = hostID
	cfg.BaseDir = baseDir
	cfg.LogDir = filepath.Join(baseDir, "log")
	cfg.Encryption = EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(baseDir, "keys", "dsum.pub"),
		PrivateKeyPath: filepath.Join(baseDir, "keys", "dsum.key"),
	}
	return cfg
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of Defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// ReadOrDefault reads the config at path, falling back to Defaults when
// the file does not exist.
func ReadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Defaults(), nil
	}
	return ReadFromFile(path)
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
