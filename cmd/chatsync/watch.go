package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatterline/chatsync"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var watchVerbose bool

func init() {
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "log sync internals to stderr")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the chat live",
	Long:  "Poll the service continuously and print messages as they arrive. Stop with Ctrl-C; the cached view is persisted on exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Service.BaseURL == "" {
			return fmt.Errorf("no service URL, run 'chatsync init <base-url>' first")
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
		if watchVerbose {
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
				With().Timestamp().Logger()
			opts = append(opts, chatsync.WithLogger(log))
		}

		engine := chatsync.New(cfg.Service.BaseURL, opts...)
		defer engine.Close()

		seen := make(map[string]bool)
		for _, m := range engine.Messages() {
			seen[m.ID] = true
		}

		printNew := func() {
			msgs := engine.Messages()
			for i := len(msgs) - 1; i >= 0; i-- {
				m := msgs[i]
				if seen[m.ID] {
					continue
				}
				seen[m.ID] = true
				fmt.Printf("%s  %-16s %s\n",
					m.CreatedAt.Local().Format("15:04:05"),
					engine.DisplayName(m.AuthorID),
					m.Text,
				)
			}
		}

		engine.On(chatsync.EventSyncComplete, func(event string, payload any) {
			printNew()
		})
		engine.On(chatsync.EventSessionRollover, func(event string, payload any) {
			seen = make(map[string]bool)
			fmt.Println("-- server session changed, local history reset --")
		})
		engine.On(chatsync.EventSyncError, func(event string, payload any) {
			if detail, ok := payload.(map[string]any); ok {
				if retry, _ := detail["willRetry"].(bool); !retry {
					fmt.Fprintf(os.Stderr, "sync gave up: %v\n", detail["error"])
				}
			}
		})
		engine.On(chatsync.EventConnState, func(event string, payload any) {
			if state, ok := payload.(chatsync.ConnState); ok && watchVerbose {
				fmt.Fprintf(os.Stderr, "connection: %s\n", state)
			}
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %s (poll every %s), Ctrl-C to quit\n", cfg.Service.BaseURL, pollInterval(cfg))
		printNew()
		engine.Start(ctx)

		<-ctx.Done()
		engine.Stop()
		fmt.Println("\nStopped.")
		return nil
	},
}

func pollInterval(cfg *Config) time.Duration {
	if cfg.Sync.PollIntervalSeconds > 0 {
		return time.Duration(cfg.Sync.PollIntervalSeconds) * time.Second
	}
	return chatsync.DefaultPollInterval
}
