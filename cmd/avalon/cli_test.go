// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/avalon/pkg/engine"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/history"
)

// execute runs the CLI in-process and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func offline(dir string) []string {
	return []string{
		"--set", "llm.provider=mock",
		"--set", "log.level=error",
		"--set", "actors.retries=1",
		"--set", "history.log_dir=" + filepath.Join(dir, "logs"),
		"--set", "history.formats=[json]",
		"--set", "history.sqlite_path=" + filepath.Join(dir, "avalon.db"),
	}
}

func TestBatchMatchesShow(t *testing.T) {
	dir := t.TempDir()
	flags := offline(dir)

	out, err := execute(t, append([]string{"batch", "-n", "3", "--parallel", "2", "--set", "match.seed=7", "--json"}, flags...)...)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	var stats Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.Matches != 3 || stats.Aborted != 0 {
		t.Fatalf("expected 3 finished matches, got %+v", &stats)
	}
	if stats.Wins["Good"]+stats.Wins["Evil"] != 3 {
		t.Errorf("wins do not add up: %v", stats.Wins)
	}
	if r := stats.Backends["mock"]; r.Played != 18 {
		t.Errorf("expected 18 mock seat-games, got %+v", r)
	}

	out, err = execute(t, append([]string{"matches", "--json"}, flags...)...)
	if err != nil {
		t.Fatalf("matches: %v\n%s", err, out)
	}
	var list []history.MatchSummary
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode matches: %v\n%s", err, out)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 recorded matches, got %d", len(list))
	}
	for _, m := range list {
		if !m.Finished() || len(m.Seats) != 6 {
			t.Errorf("unexpected summary %+v", m)
		}
	}

	out, err = execute(t, append([]string{"show", list[0].MatchID}, flags...)...)
	if err != nil {
		t.Fatalf("show: %v\n%s", err, out)
	}
	for _, want := range []string{"AVALON GAME LOG", list[0].MatchID, "ROUND 1", "Winner:"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q", want)
		}
	}

	// Without a database the JSON log file is read instead.
	noDB := append([]string{"show", list[0].MatchID}, flags...)
	noDB = append(noDB, "--set", "history.sqlite_path=")
	out, err = execute(t, noDB...)
	if err != nil {
		t.Fatalf("show from files: %v\n%s", err, out)
	}
	if !strings.Contains(out, "AVALON GAME LOG") {
		t.Errorf("expected text log from file, got:\n%s", out)
	}
}

func TestShowUnknownMatch(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, append([]string{"batch", "-n", "1"}, offline(dir)...)...); err != nil {
		t.Fatalf("batch: %v", err)
	}
	_, err := execute(t, append([]string{"show", "nope"}, offline(dir)...)...)
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlayQuiet(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, append([]string{"play", "--seed", "3", "-q"}, offline(dir)...)...)
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out)
	}
	for _, want := range []string{"seed 3", "wins", "Roles:", "Merlin", "Log: "} {
		if !strings.Contains(out, want) {
			t.Errorf("play output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"bad provider", []string{"batch", "--set", "llm.provider=gemini"}, errors.CodeConfiguration},
		{"zero matches", append([]string{"batch", "-n", "0"}, offline(dir)...), errors.CodeInvalidInput},
		{"humans in batch", append([]string{"batch", "--set", "match.humans=[Alice]"}, offline(dir)...), errors.CodeInvalidInput},
		{"matches without db", []string{"matches", "--set", "llm.provider=mock"}, errors.CodeConfiguration},
		{"unknown human", append([]string{"play", "--human", "Mallory"}, offline(dir)...), errors.CodeConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestNarrator(t *testing.T) {
	var buf bytes.Buffer
	n := &narrator{w: &buf}
	ctx := context.Background()
	emit := func(typ engine.EventType, round int, payload map[string]any) {
		n.Emit(ctx, engine.NewEvent(typ, "m1", round, engine.PhasePropose, payload))
	}

	emit(engine.EventTeamProposed, 1, map[string]any{"leader": "Alice", "team": []string{"Alice", "Bob"}, "attempt": 1, "forced": false})
	emit(engine.EventComment, 1, map[string]any{"speaker": "Bob", "text": "Looks fine."})
	emit(engine.EventProposalClosed, 1, map[string]any{"proposal": history.Proposal{
		FinalTeam: []string{"Alice", "Bob"},
		Votes:     map[string]bool{"Alice": true, "Bob": true, "Charlie": true, "Diana": true, "Eve": false, "Frank": false},
		Approved:  true,
	}})
	emit(engine.EventMission, 1, map[string]any{"success": false, "fails": 1, "good_wins": 0, "evil_wins": 1})
	emit(engine.EventTeamProposed, 2, map[string]any{"leader": "Eve", "team": []string{"Eve", "Frank", "Bob"}, "attempt": 5, "forced": true})
	emit(engine.EventAssassination, 5, map[string]any{"assassin": "Frank", "target": "Alice"})

	got := buf.String()
	for _, want := range []string{
		"Round 1, proposal 1",
		"Alice proposes Alice, Bob",
		"Bob: Looks fine.",
		"Final team Alice, Bob approved (4/6)",
		"Mission FAILED with 1 fail(s). Good 0, Evil 1",
		"Round 2, proposal 5 (forced)",
		"Frank names Alice",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("narration missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\033[") {
		t.Errorf("expected no color codes without a terminal")
	}
}
