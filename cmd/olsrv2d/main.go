package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benpicco/olsrv2d/internal/config"
	"github.com/benpicco/olsrv2d/internal/daemonlog"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "olsrv2d",
		Short: "OLSRv2/NHDP mesh routing daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/olsrv2d/olsrv2d.toml", "path to the TOML configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable verbose development-mode logging")

	return cmd
}

func runDaemon(configPath string, debug bool) error {
	logger, err := daemonlog.New(daemonlog.Options{Debug: debug})
	if err != nil {
		return fmt.Errorf("olsrv2d: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("olsrv2d: %w", err)
	}

	d, err := New(cfg, sugar)
	if err != nil {
		return fmt.Errorf("olsrv2d: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
