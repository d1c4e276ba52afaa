package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config is the CLI configuration stored in ~/.chatsync/config.toml.
type Config struct {
	Service struct {
		BaseURL string `toml:"base_url"`
		Token   string `toml:"token"`
		SelfID  string `toml:"self_id"`
	} `toml:"service"`
	Sync struct {
		PollIntervalSeconds int    `toml:"poll_interval_seconds"`
		CacheFile           string `toml:"cache_file"`
	} `toml:"sync"`
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatsync"), nil
}

func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads the config file. A missing file yields an empty config,
// and CHATSYNC_* environment variables override what the file holds.
func loadConfig() (*Config, error) {
	cfg := &Config{}

	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	if v := os.Getenv("CHATSYNC_BASE_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := os.Getenv("CHATSYNC_TOKEN"); v != "" {
		cfg.Service.Token = v
	}
	if v := os.Getenv("CHATSYNC_SELF_ID"); v != "" {
		cfg.Service.SelfID = v
	}
	return cfg, nil
}

func saveConfig(cfg *Config) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	return nil
}

// setConfigValue applies a dot-notation key to the config.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "service.base_url":
		cfg.Service.BaseURL = value
	case "service.token":
		cfg.Service.Token = value
	case "service.self_id":
		cfg.Service.SelfID = value
	case "sync.cache_file":
		cfg.Sync.CacheFile = value
	case "sync.poll_interval_seconds":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("invalid interval %q", value)
		}
		cfg.Sync.PollIntervalSeconds = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Synchronized local view of a chat service",
	Long: `chatsync keeps a local, offline-capable copy of a chat room in sync
with its server: messages, participants, and reactions, updated by polling
and by optimistic local writes.`,
	SilenceUsage: true,
}

func main() {
	// A .env in the working directory can supply CHATSYNC_* variables.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
