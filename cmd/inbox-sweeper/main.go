package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mikey/inbox-sweeper/internal/console"
	"github.com/mikey/inbox-sweeper/internal/di"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
)

var diOpts di.Options

var rootCmd = &cobra.Command{
	Use:           "inbox-sweeper",
	Short:         "Classify and sweep promotional email with an LLM",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&diOpts.ConfigFile, "config", "", "config file (default searches ./config.yaml and ~/.inbox-sweeper)")
	rootCmd.PersistentFlags().BoolVarP(&diOpts.Verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(dig.RootCause(err), console.ErrInspectOnly) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", dig.RootCause(err))
			os.Exit(1)
		}
	}
}

func buildContainer() (*dig.Container, error) {
	container, err := di.BuildContainer(diOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency container: %w", err)
	}
	return container, nil
}

// invoke builds the container and runs fn with its dependencies injected
func invoke(fn any) error {
	container, err := buildContainer()
	if err != nil {
		return err
	}
	return container.Invoke(fn)
}
