// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the avalon CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jllopis/avalon/pkg/config"
	"github.com/jllopis/avalon/pkg/telemetry"
)

const version = "0.3.0"

// app carries what every command needs once the root has loaded config.
type app struct {
	configPath string
	profile    string
	sets       []string
	jsonOut    bool

	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.MatchMetrics
	shutdown telemetry.ShutdownFunc
	out      io.Writer
	tty      bool
}

// configArgs rebuilds the flag list understood by config.LoadWithCLI.
func (a *app) configArgs() []string {
	var args []string
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	if a.profile != "" {
		args = append(args, "--profile", a.profile)
	}
	for _, s := range a.sets {
		args = append(args, "--set", s)
	}
	return args
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local secrets such as DEEPSEEK_API_KEY. A missing file is fine.
	_ = godotenv.Load(".env.local")

	a := &app{out: os.Stdout}
	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(err, a.jsonOut)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "avalon",
		Short:         "Six-seat Avalon matches between language models and people",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (YAML)")
	flags.StringVar(&a.profile, "profile", "", "Config profile, loads config.<profile>.yaml next to --config")
	flags.StringArrayVar(&a.sets, "set", nil, "Override a config key, e.g. --set llm.model=deepseek-chat")
	flags.BoolVar(&a.jsonOut, "json", false, "Machine readable output")

	root.AddCommand(
		newPlayCmd(a),
		newBatchCmd(a),
		newMatchesCmd(a),
		newShowCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.LoadWithCLI(a.configArgs())
	if err != nil {
		return wrapConfigError(err)
	}
	a.cfg = cfg
	a.tty = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Logs go to stderr so match output and --json stay clean.
	a.logger = telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig("avalon", version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		Output:             os.Stderr,
	})
	if err != nil {
		return wrapConfigError(err)
	}
	a.shutdown = shutdown
	if cfg.Telemetry.Exporter != "none" {
		m, err := telemetry.NewMatchMetrics()
		if err != nil {
			return wrapConfigError(err)
		}
		a.metrics = m
	}
	a.logger.DebugContext(ctx, "config loaded",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"telemetry", cfg.Telemetry.Exporter,
	)
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
