package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mikey/inbox-sweeper/internal/console"
	"github.com/mikey/inbox-sweeper/internal/records"
	"github.com/mikey/inbox-sweeper/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reviewSessionID string
	reviewList      bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review emails held back for a human decision",
	Long: "Walks the review queue one email at a time and saves approve, keep or skip\n" +
		"answers to review_decisions_<session>.json. Use 'apply --reviewed' to delete\n" +
		"what was approved. Without a terminal, or with --list, the queue is only listed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(func(sessions *session.Manager, logger *zap.Logger) error {
			id, err := sessionIDOrCurrent(sessions, reviewSessionID)
			if err != nil {
				return err
			}
			set, err := records.Open(sessions.Dir(), id, logger)
			if err != nil {
				return err
			}
			if set.Len() == 0 {
				return fmt.Errorf("no records for session %s in %s", id, sessions.Dir())
			}

			out := cmd.OutOrStdout()
			queue := set.ReviewQueue()
			if reviewList || len(queue) == 0 || !isTerminal(os.Stdin) {
				fmt.Fprintln(out, console.RenderReview(queue))
				return nil
			}

			prior, err := records.LoadReviewDecisions(sessions.Dir(), id)
			if err != nil {
				return err
			}
			decs, reviewErr := console.RunReview(queue, prior, console.AskReview, time.Now)
			if len(decs) == 0 {
				if reviewErr == nil {
					fmt.Fprintln(out, "Nothing left to review.")
				}
				return reviewErr
			}

			path, err := records.SaveReviewDecisions(sessions.Dir(), id, decs)
			if err != nil {
				return err
			}
			logger.Info("Saved review decisions", zap.String("session_id", id), zap.Int("count", len(decs)), zap.String("path", path))
			fmt.Fprintln(out, console.RenderReviewSummary(decs))
			fmt.Fprintf(out, "Decisions: %s\nRun 'inbox-sweeper apply --session %s --reviewed' to delete the approved emails.\n", path, id)
			return reviewErr
		})
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewSessionID, "session", "", "session id (default: the saved session)")
	reviewCmd.Flags().BoolVar(&reviewList, "list", false, "only list the review queue")
	rootCmd.AddCommand(reviewCmd)
}
