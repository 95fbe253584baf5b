package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/classifier"
	"github.com/t77yq/duewatch/internal/model"
	"github.com/t77yq/duewatch/internal/source"
)

type evaluateOptions struct {
	at string
}

// newEvaluateCommand builds the feed once from the backend and prints it,
// without NATS or history
func newEvaluateCommand(root *rootOptions) *cobra.Command {
	opts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Build the alert feed once and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			reference := time.Now().UTC()
			if opts.at != "" {
				date, err := model.ParseDate(opts.at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				reference = date.Midnight()
			}

			loader := source.NewLoader(source.NewClient(cfg.Backend, logger), logger)
			loaded, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}

			kinds := make([]string, 0, len(loaded.Failures))
			for kind := range loaded.Failures {
				kinds = append(kinds, string(kind))
			}
			sort.Strings(kinds)
			if len(kinds) > 0 {
				logger.Warn("Feed built from a partial load", zap.Strings("failed_kinds", kinds))
			}

			feed, err := classifier.BuildFeed(loaded.Entities, reference, cfg.Classifier)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(feed, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal feed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.at, "at", "", "reference date (YYYY-MM-DD), today when empty")

	return cmd
}
