package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reactCmd)
}

var reactCmd = &cobra.Command{
	Use:   "react <message-id> <emoji>",
	Short: "Toggle a reaction on a message",
	Long:  "Add or remove your reaction on a cached message. Servers without reaction endpoints keep the reaction local.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := getEngine()
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Sync first so the target message can be addressed by server id.
		if err := engine.ForceSync(ctx); err != nil {
			fmt.Printf("Warning: sync failed (%v), toggling against cached state\n", err)
		}

		id, emoji := args[0], args[1]
		if err := engine.ToggleReaction(ctx, id, emoji); err != nil {
			return err
		}

		msg, ok := engine.Message(id)
		if !ok {
			return nil
		}
		group, present := msg.Tally[emoji]
		if present {
			fmt.Printf("%s now has %d x %s\n", id, group.Count, emoji)
		} else {
			fmt.Printf("Removed %s from %s\n", emoji, id)
		}
		return nil
	},
}
