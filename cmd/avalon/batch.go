// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/avalon/pkg/config"
	"github.com/jllopis/avalon/pkg/engine"
	"github.com/jllopis/avalon/pkg/errors"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		count    int
		parallel int
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Play many automated matches and report win rates",
		Example: `  avalon batch -n 50 --parallel 4 --set llm.provider=mock
  avalon batch -n 200 --config avalon.yaml --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return &CLIError{
					AvalonError: errors.Newf(errors.CodeInvalidInput, "-n must be at least 1, got %d", count),
				}
			}
			if len(a.cfg.Match.Humans) > 0 {
				return &CLIError{
					AvalonError: errors.New(errors.CodeInvalidInput, "batch matches cannot have human seats", nil),
					Hint:        "clear match.humans or use avalon play",
				}
			}
			ctx := cmd.Context()

			current := func() *config.Config { return a.cfg }
			if watch {
				w, err := config.WatchCLI(ctx, a.configArgs(), config.WithWatchLogger(a.logger))
				if err != nil {
					return wrapConfigError(err)
				}
				defer w.Stop()
				current = w.Config
			}

			rec, err := openRecorder(a.cfg.History)
			if err != nil {
				return wrapConfigError(err)
			}
			defer rec.Close()

			stats := NewStats()
			var done atomic.Int64
			start := time.Now()

			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(max(parallel, 1))
			for i := 0; i < count; i++ {
				i := i // per-iteration copy (Go 1.22 loop semantics under go 1.21)
				g.Go(func() error {
					cfg := current()
					if err := playOne(ctx, a, cfg, rec, i, stats); err != nil {
						// Cancellation and bad config stop the batch; anything else is one lost match.
						if errors.IsCode(err, errors.CodeContextLost) || errors.IsCode(err, errors.CodeConfiguration) {
							return err
						}
						a.logger.WarnContext(ctx, "match failed", "index", i, "error", err)
						stats.Abort()
					}
					n := done.Add(1)
					if !a.jsonOut && a.tty {
						fmt.Fprintf(a.out, "\r%d/%d matches", n, count)
					}
					return nil
				})
			}
			err = g.Wait()
			if !a.jsonOut && a.tty {
				fmt.Fprintln(a.out)
			}
			if err != nil {
				return err
			}

			if a.jsonOut {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			stats.WriteText(a.out)
			a.printf("\nElapsed: %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of matches")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Matches played at once")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the config file between matches when it changes")
	return cmd
}

// playOne runs match i of a batch. A fixed seed makes the batch
// reproducible: match i uses seed+i.
func playOne(ctx context.Context, a *app, cfg *config.Config, rec *recorder, i int, stats *Stats) error {
	actors, err := lineup(cfg, nil)
	if err != nil {
		return err
	}
	opts := append(a.matchOptions(cfg, actors, rec), engine.WithLogger(a.logger.With("batch_index", i)))
	if cfg.Match.Seed != 0 {
		opts = append(opts, engine.WithSeed(cfg.Match.Seed+int64(i)))
	}
	m, err := engine.Start(cfg.Match.Seats, opts...)
	if err != nil {
		return err
	}
	res, err := m.Run(ctx)
	if err != nil {
		return err
	}
	stats.Add(res)
	return nil
}
