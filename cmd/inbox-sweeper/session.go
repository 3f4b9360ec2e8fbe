package main

import (
	"fmt"

	"github.com/mikey/inbox-sweeper/internal/console"
	"github.com/mikey/inbox-sweeper/internal/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or discard the saved session",
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the saved session without changing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(func(sessions *session.Manager) error {
			st, err := sessions.Inspect()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.RenderSession(st))
			return nil
		})
	},
}

var sessionDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Set the saved session aside so the next run starts fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(func(sessions *session.Manager) error {
			path, err := sessions.Discard()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session moved to %s\n", path)
			return nil
		})
	},
}

func init() {
	sessionCmd.AddCommand(sessionInspectCmd, sessionDiscardCmd)
	rootCmd.AddCommand(sessionCmd)
}

// sessionIDOrCurrent falls back to the saved session when id is empty
func sessionIDOrCurrent(sessions *session.Manager, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	st, err := sessions.Inspect()
	if err != nil {
		return "", fmt.Errorf("no --session given and %w", err)
	}
	return st.SessionID, nil
}
