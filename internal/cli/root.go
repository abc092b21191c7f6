package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"response-broker/internal/config"
	"response-broker/internal/wiring"
)

// Builder constructs the broker graph for a command run.
type Builder func(ctx context.Context, logger *slog.Logger) (*wiring.Container, error)

// EnvBuilder reads configuration from the process environment.
func EnvBuilder(ctx context.Context, logger *slog.Logger) (*wiring.Container, error) {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return nil, err
	}
	return wiring.New(ctx, cfg, logger, wiring.Overrides{})
}

type app struct {
	build   Builder
	ctr     *wiring.Container
	verbose bool
	channel string
}

// NewRootCommand returns the brokerctl command tree. stdin feeds the chat
// command.
func NewRootCommand(build Builder, stdin io.Reader) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:   "brokerctl",
		Short: "Talk to the multi-provider response broker",
		Long: `brokerctl drives the response broker from a terminal.

It shares configuration with the Lambda entrypoint (STORE_BACKEND, STATE_TABLE,
BOLT_PATH, PROVIDERS_FILE, provider keys). Use STORE_BACKEND=bolt for a local
history file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.ctr != nil {
				return nil
			}
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			ctr, err := a.build(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("failed to start broker: %w", err)
			}
			a.ctr = ctr
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log provider attempts to stderr")
	root.PersistentFlags().StringVarP(&a.channel, "channel", "c", "cli", "Conversation channel")

	root.AddCommand(
		newAskCommand(a),
		newChatCommand(a, stdin),
		newHeartbeatCommand(a),
		newReflectCommand(a),
		newInsightCommand(a),
		newProvidersCommand(a),
	)
	return root
}

// closing wraps a RunE so the container is released even when it fails.
func (a *app) closing(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() {
			if a.ctr != nil {
				_ = a.ctr.Close()
				a.ctr = nil
			}
		}()
		return run(cmd, args)
	}
}

// Execute runs the CLI against the real environment and returns the exit
// code.
func Execute(ctx context.Context) int {
	root := NewRootCommand(EnvBuilder, os.Stdin)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
