package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(participantsCmd)
}

var participantsCmd = &cobra.Command{
	Use:   "participants",
	Short: "List chat participants",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := getEngine()
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := engine.ForceSync(ctx); err != nil {
			fmt.Printf("Warning: sync failed (%v), listing cached state\n", err)
		}

		parts := engine.Participants()
		if len(parts) == 0 {
			fmt.Println("No participants known.")
			return nil
		}
		for _, p := range parts {
			line := fmt.Sprintf("%-24s %s", p.ID, engine.DisplayName(p.ID))
			if p.Role != "" {
				line += "  (" + p.Role + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}
