package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chatterline/chatsync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(retryCmd)
}

var retryCmd = &cobra.Command{
	Use:   "retry [message-id]",
	Short: "Retry failed sends",
	Long:  "Re-post a failed local message. Without an id, every failed message is retried in order.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := getEngine()
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if len(args) == 1 {
			msg, err := engine.RetrySend(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Sent %s\n", msg.ID)
			return nil
		}

		var failed []chatsync.Message
		for _, m := range engine.Messages() {
			if m.Status == chatsync.StatusFailed {
				failed = append(failed, m)
			}
		}
		if len(failed) == 0 {
			fmt.Println("Nothing to retry.")
			return nil
		}

		// Oldest first, so retried messages land in their original order.
		for i := len(failed) - 1; i >= 0; i-- {
			msg, err := engine.RetrySend(ctx, failed[i].ID)
			if err != nil {
				fmt.Printf("Retry of %s failed: %v\n", failed[i].ID, err)
				continue
			}
			fmt.Printf("Sent %s\n", msg.ID)
		}
		return nil
	},
}
