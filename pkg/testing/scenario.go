// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing holds helpers for match and actor tests: scripted actors
// and providers, event collection, declarative scenarios and a check of
// every rule a finished match log must satisfy.
//
//	collector := testing.NewEventCollector()
//	m, _ := engine.Start(names, engine.WithEvents(collector), ...)
//
//	testing.NewScenario("evil sweep").
//	    WithEvents(collector).
//	    ExpectNoError().
//	    ExpectWinner(game.Evil).
//	    Run(t, m).
//	    Assert(t)
package testing

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/jllopis/avalon/pkg/engine"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/history"
)

// MatchRunner runs a match to completion. *engine.Match implements it.
type MatchRunner interface {
	Run(ctx context.Context) (history.Result, error)
}

// Expectation is one named check on a finished scenario.
type Expectation struct {
	Description string
	Check       func(r *ScenarioResult) error
}

// ScenarioResult is what a scenario run produced.
type ScenarioResult struct {
	Result   history.Result
	Error    error
	Events   []engine.Event
	Duration time.Duration

	scenario *Scenario
}

// Scenario runs one match under a deadline and then checks expectations.
type Scenario struct {
	name      string
	ctx       context.Context
	timeout   time.Duration
	collector *EventCollector
	expect    []Expectation
}

// NewScenario creates a scenario with a 30s deadline.
func NewScenario(name string) *Scenario {
	return &Scenario{name: name, ctx: context.Background(), timeout: 30 * time.Second}
}

func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.ctx = ctx
	return s
}

func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithEvents names the collector that was given to the match, so event
// expectations can see what it emitted.
func (s *Scenario) WithEvents(c *EventCollector) *Scenario {
	s.collector = c
	return s
}

func (s *Scenario) Expect(e Expectation) *Scenario {
	s.expect = append(s.expect, e)
	return s
}

func (s *Scenario) ExpectNoError() *Scenario { return s.Expect(NoError()) }

func (s *Scenario) ExpectErrorCode(code errors.ErrorCode) *Scenario {
	return s.Expect(ErrorCode(code))
}

func (s *Scenario) ExpectWinner(f game.Faction) *Scenario { return s.Expect(Winner(f)) }

// ExpectMissionResults wants exactly these mission outcomes, in order.
func (s *Scenario) ExpectMissionResults(results ...bool) *Scenario {
	return s.Expect(MissionResults(results...))
}

func (s *Scenario) ExpectAssassination(happened bool) *Scenario {
	return s.Expect(Assassination(happened))
}

func (s *Scenario) ExpectEvent(t engine.EventType) *Scenario { return s.Expect(Emitted(t)) }

func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(Within(d))
}

// Run plays match to the end or the deadline.
func (s *Scenario) Run(t *testing.T, match MatchRunner) *ScenarioResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := match.Run(ctx)
	r := &ScenarioResult{Result: res, Error: err, Duration: time.Since(start), scenario: s}
	if s.collector != nil {
		r.Events = s.collector.Events()
	}
	return r
}

// Assert reports every failed expectation, not only the first.
func (r *ScenarioResult) Assert(t *testing.T) {
	t.Helper()
	for _, e := range r.scenario.expect {
		if err := e.Check(r); err != nil {
			t.Errorf("scenario %q: %s: %v", r.scenario.name, e.Description, err)
		}
	}
}

func NoError() Expectation {
	return Expectation{"no error", func(r *ScenarioResult) error {
		if r.Error != nil {
			return fmt.Errorf("unexpected error: %v", r.Error)
		}
		return nil
	}}
}

func ErrorCode(code errors.ErrorCode) Expectation {
	return Expectation{"error code " + string(code), func(r *ScenarioResult) error {
		if !errors.IsCode(r.Error, code) {
			return fmt.Errorf("got %v", r.Error)
		}
		return nil
	}}
}

func Winner(f game.Faction) Expectation {
	return Expectation{string(f) + " wins", func(r *ScenarioResult) error {
		if r.Result.Winner != f {
			return fmt.Errorf("winner %q", r.Result.Winner)
		}
		return nil
	}}
}

func MissionResults(want ...bool) Expectation {
	return Expectation{fmt.Sprintf("missions %v", want), func(r *ScenarioResult) error {
		if !slices.Equal(r.Result.MissionResults, want) {
			return fmt.Errorf("missions %v", r.Result.MissionResults)
		}
		return nil
	}}
}

func Assassination(happened bool) Expectation {
	desc := "no assassination"
	if happened {
		desc = "assassination"
	}
	return Expectation{desc, func(r *ScenarioResult) error {
		if (r.Result.Assassination != nil) != happened {
			return fmt.Errorf("assassination = %+v", r.Result.Assassination)
		}
		return nil
	}}
}

// Emitted needs the scenario to have a collector.
func Emitted(t engine.EventType) Expectation {
	return Expectation{fmt.Sprintf("event %q", t), func(r *ScenarioResult) error {
		for _, ev := range r.Events {
			if ev.Type == t {
				return nil
			}
		}
		return fmt.Errorf("not emitted")
	}}
}

func Within(d time.Duration) Expectation {
	return Expectation{fmt.Sprintf("within %v", d), func(r *ScenarioResult) error {
		if r.Duration > d {
			return fmt.Errorf("took %v", r.Duration)
		}
		return nil
	}}
}
