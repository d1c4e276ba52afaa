package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chatterline/chatsync"
	"github.com/spf13/cobra"
)

var (
	logCount   int
	logOffline bool
)

func init() {
	logCmd.Flags().IntVarP(&logCount, "count", "n", 20, "number of messages to show")
	logCmd.Flags().BoolVar(&logOffline, "offline", false, "show cached state only, without syncing")
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent messages",
	Long:  "Print the most recent messages, newest last. By default a sync runs first; --offline prints the cached view as is.",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := getEngine()
		defer engine.Close()

		if !logOffline {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := engine.ForceSync(ctx); err != nil {
				fmt.Printf("Warning: sync failed (%v), showing cached state\n", err)
			}
		}

		msgs := engine.Messages()
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		if logCount > 0 && len(msgs) > logCount {
			msgs = msgs[:logCount]
		}

		// The cache is newest first; read it backwards so the terminal shows
		// the conversation in chronological order.
		for i := len(msgs) - 1; i >= 0; i-- {
			m := msgs[i]
			line := fmt.Sprintf("%s  %-16s %s",
				m.CreatedAt.Local().Format("15:04:05"),
				engine.DisplayName(m.AuthorID),
				m.Text,
			)
			if m.Status == chatsync.StatusFailed {
				line += "  [failed]"
			} else if m.Status == chatsync.StatusSending {
				line += "  [sending]"
			}
			if len(m.Tally) > 0 {
				var marks []string
				for emoji, group := range m.Tally {
					marks = append(marks, fmt.Sprintf("%s %d", emoji, group.Count))
				}
				line += "  {" + strings.Join(marks, ", ") + "}"
			}
			fmt.Println(line)
		}
		return nil
	},
}
