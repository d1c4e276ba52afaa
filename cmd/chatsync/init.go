package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initToken string

func init() {
	initCmd.Flags().StringVar(&initToken, "token", "", "bearer token for the chat service")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <base-url>",
	Short: "Store the chat service URL in ~/.chatsync/config.toml",
	Long:  "Initialize the chatsync CLI by storing the service base URL (and optionally a token) in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Service.BaseURL = args[0]
		if initToken != "" {
			cfg.Service.Token = initToken
		}
		if cfg.Sync.PollIntervalSeconds == 0 {
			cfg.Sync.PollIntervalSeconds = 5
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Service URL saved to %s\n", path)
		return nil
	},
}
