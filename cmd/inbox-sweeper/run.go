package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/inbox-sweeper/internal/console"
	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/factory"
	"github.com/mikey/inbox-sweeper/internal/pipeline"
	"github.com/mikey/inbox-sweeper/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resumeMode string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, classify and decide every email not yet decided",
	RunE:  runSweep,
}

func init() {
	runCmd.Flags().StringVar(&resumeMode, "resume", "ask", "what to do with an unfinished session: ask, resume, restart or inspect")
	runCmd.Flags().BoolVar(&diOpts.DeleteApproved, "delete", false, "delete approved emails as each batch is committed")
	runCmd.Flags().StringVar(&diOpts.InputFile, "input", "", "read summaries from a JSON-lines file instead of IMAP")
	rootCmd.AddCommand(runCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	choice, err := console.ParseChoice(resumeMode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ask console.Asker
	if isTerminal(os.Stdin) {
		ask = console.AskResume
	}

	container, err := buildContainer()
	if err != nil {
		return err
	}

	if err := container.Invoke(func(sessions *session.Manager) error {
		_, err := console.OpenSession(sessions, choice, ask, cmd.OutOrStdout())
		return err
	}); err != nil {
		return err
	}

	// resolved after the session is open so inspecting never needs credentials
	return container.Invoke(func(
		logger *zap.Logger,
		runner *pipeline.Runner,
		mb factory.Mailbox,
		sc factory.SenderCache,
		llm core.LLMClient,
	) error {
		defer logger.Sync()
		defer sc.Stop()
		defer closeQuietly(logger, "mailbox", mb.Close)
		if closer, ok := llm.(interface{ Close() error }); ok {
			defer closeQuietly(logger, "LLM client", closer.Close)
		}
		return sweep(ctx, cmd, runner, logger)
	})
}

func sweep(ctx context.Context, cmd *cobra.Command, runner *pipeline.Runner, logger *zap.Logger) error {
	res, err := runner.Run(ctx)
	for _, f := range res.Failures {
		logger.Warn("Batch skipped", zap.String("stage", f.Stage), zap.Strings("email_ids", f.EmailIDs), zap.Error(f.Err))
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted. Committed batches are saved; run again with --resume=resume to continue.")
		return err
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, console.RenderSummary(res.Summary))
	fmt.Fprintf(out, "Records:      %s\n", res.RecordsPath)
	if res.ReviewPath != "" {
		fmt.Fprintf(out, "Review queue: %s\n", res.ReviewPath)
	}
	if res.Deleted > 0 {
		fmt.Fprintf(out, "Deleted:      %d\n", res.Deleted)
	}
	if res.Incomplete {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d batches failed and stay undecided. Session %s is still open; run again with --resume=resume to retry them.\n",
			len(res.Failures), res.Summary.SessionID)
	}
	return nil
}

func closeQuietly(logger *zap.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("Failed to close "+what, zap.Error(err))
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
