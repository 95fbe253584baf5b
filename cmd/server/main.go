package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "duewatch",
		Short:         "Watches accreditation deadlines and publishes a prioritized alert feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file path (defaults and DUEWATCH_* variables only when empty)")

	serve := newServeCommand(opts)
	cmd.RunE = serve.RunE
	cmd.AddCommand(serve, newEvaluateCommand(opts))

	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if opts.configPath == "" {
		return config.LoadFromEnv()
	}
	return config.Load(opts.configPath)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapConfig.Level = level
	}

	return zapConfig.Build()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("Error: %v", err)
	}
}
