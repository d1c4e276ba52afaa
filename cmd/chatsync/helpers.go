package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chatterline/chatsync"
)

// getEngine builds an engine from the stored configuration, backed by the
// on-disk snapshot store so state survives between invocations.
func getEngine() *chatsync.Engine {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Service.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "No service URL. Run 'chatsync init <base-url>' first.")
		os.Exit(1)
	}

	opts := []chatsync.Option{}
	if cfg.Service.Token != "" {
		opts = append(opts, chatsync.WithToken(cfg.Service.Token))
	}
	if cfg.Service.SelfID != "" {
		opts = append(opts, chatsync.WithSelfID(cfg.Service.SelfID))
	}
	if cfg.Sync.PollIntervalSeconds > 0 {
		opts = append(opts, chatsync.WithPollInterval(time.Duration(cfg.Sync.PollIntervalSeconds)*time.Second))
	}

	if store := openStore(cfg); store != nil {
		opts = append(opts, chatsync.WithStore(store))
	}

	return chatsync.New(cfg.Service.BaseURL, opts...)
}

// openStore opens the SQLite snapshot store. Failure degrades to the
// in-memory default rather than blocking the command.
func openStore(cfg *Config) chatsync.Store {
	path := cfg.Sync.CacheFile
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil
		}
		path = filepath.Join(dir, "cache.db")
	}
	store, err := chatsync.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open snapshot store (%v), state will not persist\n", err)
		return nil
	}
	return store
}

// maskToken shows the first 6 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 10 {
		return "****"
	}
	return token[:6] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
