package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults resolves the application's default paths. Two environment
// variables override them:
//
//	CLASSMIRROR_CONFIG_PATH  config file (default ~/.config/classmirror.toml)
//	CLASSMIRROR_HOME         data directory (default ~/.local/share/classmirror)
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

// getConfigPath honors CLASSMIRROR_CONFIG_PATH when set, otherwise the
// config file lives at ~/.config/classmirror.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CLASSMIRROR_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "classmirror.toml"), nil
}

// getBaseDir honors CLASSMIRROR_HOME when set, otherwise data lives
// under the XDG default ~/.local/share/classmirror.
func getBaseDir() (string, error) {
	if path := os.Getenv("CLASSMIRROR_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "classmirror"), nil
}
