package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/inbox-sweeper/internal/factory"
	"github.com/mikey/inbox-sweeper/internal/pipeline"
	"github.com/mikey/inbox-sweeper/internal/records"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"github.com/mikey/inbox-sweeper/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	applySessionID string
	applyReviewed  bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Delete the emails a session or its reviewer approved",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return invoke(func(
			sessions *session.Manager,
			mb factory.Mailbox,
			policy retry.Policy,
			logger *zap.Logger,
		) error {
			defer logger.Sync()
			defer closeQuietly(logger, "mailbox", mb.Close)

			set, err := records.Open(sessions.Dir(), applySessionID, logger)
			if err != nil {
				return err
			}
			if set.Len() == 0 {
				return fmt.Errorf("no records for session %s in %s", applySessionID, sessions.Dir())
			}
			approved := set.Approved()
			if applyReviewed {
				decs, err := records.LoadReviewDecisions(sessions.Dir(), applySessionID)
				if err != nil {
					return err
				}
				if len(decs) == 0 {
					return fmt.Errorf("no review decisions for session %s; run 'review' first", applySessionID)
				}
				approved = records.ReviewerApproved(set.ReviewQueue(), decs)
			}
			if len(approved) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s has no approved emails\n", applySessionID)
				return nil
			}

			res, err := pipeline.NewApplier(mb.Deleter, policy, logger).Apply(ctx, approved)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d, failed %d of %d approved\n", res.Deleted, len(res.Failed), len(approved))
			return err
		})
	},
}

func init() {
	applyCmd.Flags().StringVar(&applySessionID, "session", "", "session id whose approved records are deleted")
	_ = applyCmd.MarkFlagRequired("session")
	applyCmd.Flags().BoolVar(&applyReviewed, "reviewed", false, "delete what the reviewer approved instead of what the engine approved")
	applyCmd.Flags().StringVar(&diOpts.InputFile, "input", "", "use a JSON-lines file source (deletion is unsupported there)")
	rootCmd.AddCommand(applyCmd)
}
