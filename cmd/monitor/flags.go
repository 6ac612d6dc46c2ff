package main

import (
	"fmt"
	"os"
	"path/filepath"

	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
)

// Persistent flags shared by every subcommand.
var (
	flagConfig string
	flagDebug  bool
)

const defaultConfigDir = ".oasys-watchtower"

func resolveConfigPath(configFile string) (string, error) {
	if configFile != "" {
		return filepath.Abs(configFile)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, defaultConfigDir, "config.yml"), nil
}

func ensureDefaultConfig(path string, example []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if len(example) == 0 {
		return fmt.Errorf("embedded config.example.yml is empty")
	}

	logger.Info("INIT", "No config found, writing example to %s", path)
	return os.WriteFile(path, example, 0o600)
}

// loadConfig resolves, seeds, loads and validates the config named by the
// persistent flags.
func loadConfig() (*config.Config, error) {
	if flagDebug {
		logger.SetDebug(true)
	}

	path, err := resolveConfigPath(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := ensureDefaultConfig(path, configExample); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	logger.Info("INIT", "Loading config from %s...", path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
