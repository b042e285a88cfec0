// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/engine"
	"github.com/jllopis/avalon/pkg/history"
)

func newPlayCmd(a *app) *cobra.Command {
	var (
		seed   int64
		humans []string
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one match and narrate it",
		Example: `  avalon play
  avalon play --human Alice
  avalon play --seed 42 --set llm.provider=deepseek`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("seed") {
				cfg.Match.Seed = seed
			}
			if len(humans) > 0 {
				cfg.Match.Humans = append(cfg.Match.Humans, humans...)
				if err := cfg.Validate(); err != nil {
					return wrapConfigError(err)
				}
			}

			rec, err := openRecorder(cfg.History)
			if err != nil {
				return wrapConfigError(err)
			}
			defer rec.Close()

			var console actor.Actor
			if len(cfg.Match.Humans) > 0 {
				console = actor.NewConsole(
					actor.WithConsoleInput(os.Stdin),
					actor.WithConsoleOutput(a.out),
					actor.WithConsoleTimeout(cfg.Actors.InteractiveTimeout()),
					actor.WithConsoleHistory(true),
				)
			}
			actors, err := lineup(cfg, console)
			if err != nil {
				return wrapConfigError(err)
			}

			opts := append(a.matchOptions(cfg, actors, rec), engine.WithLogger(a.logger))
			if cfg.Match.Seed != 0 {
				opts = append(opts, engine.WithSeed(cfg.Match.Seed))
			}
			if !quiet && !a.jsonOut {
				opts = append(opts, engine.WithEvents(&narrator{w: a.out, color: a.tty}))
			}

			m, err := engine.Start(cfg.Match.Seats, opts...)
			if err != nil {
				return wrapConfigError(err)
			}
			if !a.jsonOut {
				a.banner(m.ID(), m.Seed())
			}

			start := time.Now()
			res, err := m.Run(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			a.printResult(res, time.Since(start))
			if rec.files != nil {
				a.printf("\nLog: %s\n", rec.files.Path(m.ID(), firstFormat(cfg.History.Formats)))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for roles and fallbacks (0 picks one)")
	cmd.Flags().StringSliceVar(&humans, "human", nil, "Seat played from this terminal (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the result")
	return cmd
}

func (a *app) banner(matchID string, seed int64) {
	a.printf("=== Avalon match %s (seed %d) ===\n", matchID, seed)
	for _, name := range a.cfg.Match.Seats {
		a.printf("  %-8s %s\n", name, describeSeat(a.cfg, name))
	}
	a.printf("\n")
}

func (a *app) printResult(res history.Result, took time.Duration) {
	a.printf("\n=== %s wins (%d-%d) in %s ===\n", res.Winner, res.GoodWins, res.EvilWins, took.Round(time.Second))
	if res.Assassination != nil {
		verdict := "missed"
		if res.Assassination.Success {
			verdict = "found Merlin"
		}
		a.printf("Assassin %s targeted %s (%s): %s\n",
			res.Assassination.Assassin, res.Assassination.Target, res.Assassination.TargetRole, verdict)
	}
	a.printf("\nRoles:\n")
	for _, p := range res.Players {
		a.printf("  %-8s %-14s %-5s %s\n", p.Name, p.Role, p.Faction, p.ActorConfig)
	}
}

func firstFormat(formats []string) history.Format {
	parsed, err := history.ParseFormats(formats)
	if err != nil || len(parsed) == 0 {
		return history.FormatText
	}
	for _, f := range parsed {
		if f == history.FormatText {
			return f
		}
	}
	return parsed[0]
}

// narrator prints public match events as they happen.
type narrator struct {
	w     io.Writer
	color bool
}

const (
	ansiBold  = "\033[1m"
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiReset = "\033[0m"
)

func (n *narrator) paint(code, s string) string {
	if !n.color {
		return s
	}
	return code + s + ansiReset
}

func (n *narrator) Emit(_ context.Context, ev engine.Event) {
	p := ev.Payload
	switch ev.Type {
	case engine.EventTeamProposed:
		label := fmt.Sprintf("Round %d, proposal %v", ev.Round, p["attempt"])
		if forced, _ := p["forced"].(bool); forced {
			label += " (forced)"
		}
		fmt.Fprintf(n.w, "%s\n  %v proposes %s\n", n.paint(ansiBold, label), p["leader"], joinNames(p["team"]))
	case engine.EventComment:
		fmt.Fprintf(n.w, "  %v: %v\n", p["speaker"], p["text"])
	case engine.EventProposalClosed:
		prop, ok := p["proposal"].(history.Proposal)
		if !ok || prop.Forced {
			return
		}
		verdict := n.paint(ansiRed, "rejected")
		if prop.Approved {
			verdict = n.paint(ansiGreen, "approved")
		}
		fmt.Fprintf(n.w, "  Final team %s %s (%d/6)\n", strings.Join(prop.FinalTeam, ", "), verdict, prop.ApproveCount())
	case engine.EventMission:
		outcome := n.paint(ansiRed, "FAILED")
		if ok, _ := p["success"].(bool); ok {
			outcome = n.paint(ansiGreen, "SUCCEEDED")
		}
		fmt.Fprintf(n.w, "  Mission %s with %v fail(s). Good %v, Evil %v\n\n",
			outcome, p["fails"], p["good_wins"], p["evil_wins"])
	case engine.EventAssassination:
		fmt.Fprintf(n.w, "%s\n  %v names %v\n", n.paint(ansiBold, "Assassination"), p["assassin"], p["target"])
	case engine.EventMatchAborted:
		fmt.Fprintf(n.w, "%s %v\n", n.paint(ansiRed, "Match aborted:"), p["error"])
	}
}

func joinNames(v any) string {
	names, _ := v.([]string)
	return strings.Join(names, ", ")
}
