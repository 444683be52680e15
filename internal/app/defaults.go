package app

import (
	"fmt"
	"os"
	"path/filepath"

	"dsum-go/internal/config"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DSUM_CONFIG_PATH: config file location (default: ~/.config/dsum.toml)
//   - DSUM_HOME: base directory for dsum data (default: ~/.local/share/dsum)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking DSUM_CONFIG_PATH env var first,
// then falling back to the default ~/.config/dsum.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("DSUM_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "dsum.toml"), nil
}

// getBaseDir returns the base directory for dsum data, checking DSUM_HOME env var first,
// then falling back to the XDG default ~/.local/share/dsum.
func getBaseDir() (string, error) {
	if path := os.Getenv("DSUM_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dsum"), nil
}

// LoadConfig reads the config file named by the defaults. A missing file
// yields the built-in defaults with the default base and log directories.
func LoadConfig() (*config.Config, string, error) {
	defaults, err := GetDefaults()
	if err != nil {
		return nil, "", err
	}
	path := defaults["config_path"]
	cfg, err := config.ReadOrDefault(path)
	if err != nil {
		return nil, path, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = defaults["base_dir"]
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaults["log_dir"]
	}
	return cfg, path, nil
}
