package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Send a message",
	Long:  "Post a message to the chat service. On failure the message is kept locally with status failed and can be retried.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := getEngine()
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		text := strings.Join(args, " ")
		msg, err := engine.Send(ctx, text)
		if err != nil {
			return fmt.Errorf("send failed (kept locally as %s): %w", msg.ID, err)
		}

		fmt.Printf("Sent %s at %s\n", msg.ID, msg.CreatedAt.Format(time.RFC3339))
		return nil
	},
}
