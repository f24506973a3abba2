package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/upb/rag-chat/app"
	"github.com/upb/rag-chat/config"
	"github.com/upb/rag-chat/internal/observability"
	"go.uber.org/zap"
)

// newDependencies is replaced in tests to avoid real providers.
var newDependencies = func(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) (*app.Dependencies, error) {
	return app.NewDependencies(ctx, cfg, logger, app.WithOutput(out))
}

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Retrieval augmented chat over your documents",
		Long: `ragchat answers questions grounded in a document collection.
Documents are split, embedded and stored in a vector store; every question
retrieves the closest chunks and sends them to the chat model together with
the conversation history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override LOG_FORMAT (json or text)")

	root.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newChatCmd(opts),
	)
	return root
}

// bootstrap loads configuration, applies the command overrides and wires the
// dependencies.
func bootstrap(cmd *cobra.Command, opts *rootOptions, override func(*config.Config)) (*app.Dependencies, error) {
	cfg := config.Load()
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Observability.LogFormat = opts.logFormat
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}

	deps, err := newDependencies(cmd.Context(), cfg, logger, cmd.OutOrStdout())
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return deps, nil
}
