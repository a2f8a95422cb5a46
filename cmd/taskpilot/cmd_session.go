package main

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessions on a running daemon",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []struct {
			SessionKey string `json:"session_key"`
			Handle     string `json:"handle"`
			CreatedAt  string `json:"created_at"`
			LastSeenAt string `json:"last_seen_at"`
			EventCount int64  `json:"event_count"`
		}
		if err := newAPIClient().do(http.MethodGet, "/api/sessions", nil, &list); err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tHANDLE\tEVENTS\tLAST SEEN")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.SessionKey, s.Handle, s.EventCount, s.LastSeenAt)
		}
		return w.Flush()
	},
}
