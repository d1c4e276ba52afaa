package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session status",
	Long:  "Display the stored configuration, the cached session, and the live session descriptor from the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Service URL:  %s\n", valueOrDefault(cfg.Service.BaseURL, "(not set)"))
		if cfg.Service.Token != "" {
			fmt.Printf("  Token:        %s\n", maskToken(cfg.Service.Token))
		} else {
			fmt.Println("  Token:        (not set)")
		}
		fmt.Printf("  Local id:     %s\n", valueOrDefault(cfg.Service.SelfID, "you"))
		if cfg.Sync.PollIntervalSeconds > 0 {
			fmt.Printf("  Poll every:   %ds\n", cfg.Sync.PollIntervalSeconds)
		}

		if cfg.Service.BaseURL == "" {
			return nil
		}

		engine := getEngine()
		defer engine.Close()

		sess := engine.Session()
		fmt.Println()
		fmt.Println("Cached session:")
		fmt.Printf("  Session ID:   %s\n", valueOrDefault(sess.SessionID, "(none)"))
		if !sess.LastSyncCursor.IsZero() {
			fmt.Printf("  Sync cursor:  %s\n", sess.LastSyncCursor.Format(time.RFC3339))
		} else {
			fmt.Println("  Sync cursor:  (never synced)")
		}
		fmt.Printf("  Messages:     %d\n", len(engine.Messages()))
		fmt.Printf("  Participants: %d\n", len(engine.Participants()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println()
		fmt.Println("Live status:")
		info, err := engine.Info(ctx)
		if err != nil {
			fmt.Printf("  Error fetching session info: %v\n", err)
			return nil
		}
		fmt.Printf("  Session ID:   %s\n", info.SessionID)
		fmt.Printf("  API version:  %d\n", info.APIVersion)
		if sess.SessionID != "" && sess.SessionID != info.SessionID {
			fmt.Println("  Note: server session changed, cached state will be discarded on next sync")
		}
		return nil
	},
}
