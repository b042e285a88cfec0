// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/history"
	"github.com/jllopis/avalon/pkg/llm"
)

// Assertions provides assertion helpers for testing.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

func (a *Assertions) fail(format string, args ...any) {
	a.t.Helper()
	a.t.Errorf(format, args...)
	a.failed = true
}

// AssertEqual asserts that two values are equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.fail("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue asserts that the value is true.
func (a *Assertions) AssertTrue(value bool, msg string) {
	a.t.Helper()
	if !value {
		a.fail("%s: expected true", msg)
	}
}

// AssertContains asserts that the string contains the substring.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.fail("%s: %q does not contain %q", msg, s, substr)
	}
}

// AssertNotContains asserts that the string does not contain the substring.
func (a *Assertions) AssertNotContains(s, substr, msg string) {
	a.t.Helper()
	if strings.Contains(s, substr) {
		a.fail("%s: %q should not contain %q", msg, s, substr)
	}
}

// AssertNoError asserts that the error is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.fail("%s: unexpected error: %v", msg, err)
	}
}

// RequestAssertions provides assertion helpers for LLM requests.
type RequestAssertions struct {
	*Assertions
	req *llm.ChatRequest
}

// AssertRequest creates request assertions for the given request.
func (a *Assertions) AssertRequest(req *llm.ChatRequest) *RequestAssertions {
	a.t.Helper()
	if req == nil {
		a.fail("expected a request, got nil")
		req = &llm.ChatRequest{}
	}
	return &RequestAssertions{Assertions: a, req: req}
}

// HasModel asserts the request targets model.
func (r *RequestAssertions) HasModel(model string) *RequestAssertions {
	r.t.Helper()
	if r.req.Model != model {
		r.fail("expected model %q, got %q", model, r.req.Model)
	}
	return r
}

// HasMessageCount asserts the number of messages in the request.
func (r *RequestAssertions) HasMessageCount(count int) *RequestAssertions {
	r.t.Helper()
	if len(r.req.Messages) != count {
		r.fail("expected %d messages, got %d", count, len(r.req.Messages))
	}
	return r
}

// HasSystemMessage asserts some system message contains the substring.
func (r *RequestAssertions) HasSystemMessage(contains string) *RequestAssertions {
	r.t.Helper()
	return r.hasMessage(llm.RoleSystem, contains)
}

// HasUserMessage asserts some user message contains the substring.
func (r *RequestAssertions) HasUserMessage(contains string) *RequestAssertions {
	r.t.Helper()
	return r.hasMessage(llm.RoleUser, contains)
}

func (r *RequestAssertions) hasMessage(role llm.Role, contains string) *RequestAssertions {
	r.t.Helper()
	for _, m := range r.req.Messages {
		if m.Role == role && strings.Contains(m.Content, contains) {
			return r
		}
	}
	r.fail("no %s message contains %q", role, contains)
	return r
}

// ScenarioResultAssertions provides assertion helpers for scenario results.
type ScenarioResultAssertions struct {
	*Assertions
	result *ScenarioResult
}

// AssertScenarioResult creates result assertions.
func (a *Assertions) AssertScenarioResult(result *ScenarioResult) *ScenarioResultAssertions {
	return &ScenarioResultAssertions{Assertions: a, result: result}
}

// Succeeded asserts that the match completed.
func (s *ScenarioResultAssertions) Succeeded() *ScenarioResultAssertions {
	s.t.Helper()
	if s.result.Error != nil {
		s.fail("expected match to complete, got error: %v", s.result.Error)
	}
	return s
}

// Aborted asserts that the match returned an error.
func (s *ScenarioResultAssertions) Aborted() *ScenarioResultAssertions {
	s.t.Helper()
	if s.result.Error == nil {
		s.fail("expected match to abort")
	}
	return s
}

// WonBy asserts the winning faction.
func (s *ScenarioResultAssertions) WonBy(f game.Faction) *ScenarioResultAssertions {
	s.t.Helper()
	if s.result.Result.Winner != f {
		s.fail("expected %s to win, got %q", f, s.result.Result.Winner)
	}
	return s
}

// RequireNoError fails the test immediately if err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// RequireEqual fails the test immediately if values are not equal.
func RequireEqual(t *testing.T, expected, actual any, msg string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// RequireNotNil fails the test immediately if value is nil.
func RequireNotNil(t *testing.T, value any, msg string) {
	t.Helper()
	if value == nil {
		t.Fatalf("%s: expected non-nil value", msg)
	}
}

// AssertMatchInvariants checks a completed match log against the rules of
// the game and reports every violation found.
func AssertMatchInvariants(t *testing.T, log history.MatchLog) {
	t.Helper()
	for _, problem := range CheckMatchLog(log) {
		t.Errorf("match %s: %s", log.MatchID, problem)
	}
}

// CheckMatchLog returns the rule violations found in log.
func CheckMatchLog(log history.MatchLog) []string {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	roles := make(map[string]game.Role, len(log.Players))
	for _, p := range log.Players {
		roles[p.Name] = p.Role
	}
	seatIndex := make(map[string]int, len(log.Seats))
	for i, name := range log.Seats {
		seatIndex[name] = i
	}
	next := func(name string) string {
		i, ok := seatIndex[name]
		if !ok || len(log.Seats) == 0 {
			return ""
		}
		return log.Seats[(i+1)%len(log.Seats)]
	}

	good, evil := 0, 0
	var results []bool
	lastLeader := ""
	for ri, r := range log.Rounds {
		if r.Number != ri+1 {
			report("round %d out of order at position %d", r.Number, ri)
		}
		if len(r.Proposals) == 0 || len(r.Proposals) > game.MaxRejections+1 {
			report("round %d: %d proposals", r.Number, len(r.Proposals))
		}
		size := game.TeamSize(r.Number)
		for pi, p := range r.Proposals {
			if lastLeader != "" && p.Leader != lastLeader {
				report("round %d attempt %d: leader %s, want %s", r.Number, p.Attempt, p.Leader, lastLeader)
			}
			if len(p.InitialTeam) != size || len(p.FinalTeam) != size {
				report("round %d attempt %d: team sizes %d/%d, want %d", r.Number, p.Attempt, len(p.InitialTeam), len(p.FinalTeam), size)
			}
			forced := pi == game.MaxRejections
			if p.Forced != forced {
				report("round %d attempt %d: forced=%t", r.Number, p.Attempt, p.Forced)
			}
			if p.Forced {
				if len(p.Votes) != 0 || len(p.Discussion) != 0 || !p.Approved {
					report("round %d: forced proposal has votes or discussion", r.Number)
				}
			} else {
				if len(p.Votes) != len(log.Seats) {
					report("round %d attempt %d: %d votes", r.Number, p.Attempt, len(p.Votes))
				}
				if p.Approved != (p.ApproveCount() >= game.ApprovalsNeeded) {
					report("round %d attempt %d: approved=%t with %d approvals", r.Number, p.Attempt, p.Approved, p.ApproveCount())
				}
				problems = append(problems, checkDiscussion(r.Number, p, log.Seats)...)
			}
			closing := p.Approved || p.Forced
			if closing != (pi == len(r.Proposals)-1) {
				report("round %d attempt %d: closing proposal is not last", r.Number, p.Attempt)
			}
			if closing {
				lastLeader = p.Leader
			} else {
				lastLeader = next(p.Leader)
			}
		}

		m := r.Mission
		if m == nil {
			report("round %d has no mission", r.Number)
			continue
		}
		if len(r.Proposals) > 0 {
			final := r.Proposals[len(r.Proposals)-1].FinalTeam
			if strings.Join(final, ",") != strings.Join(m.Team, ",") {
				report("round %d: mission team %v differs from final team %v", r.Number, m.Team, final)
			}
		}
		if len(m.Actions) != len(m.Team) {
			report("round %d: %d actions for %d members", r.Number, len(m.Actions), len(m.Team))
		}
		for name, ok := range m.Actions {
			if role, known := roles[name]; known && role.Faction() == game.Good && !ok {
				report("round %d: good seat %s failed the mission", r.Number, name)
			}
		}
		if m.Success != (m.Fails() == 0) {
			report("round %d: success=%t with %d fails", r.Number, m.Success, m.Fails())
		}
		results = append(results, m.Success)
		if m.Success {
			good++
		} else {
			evil++
		}
		if (good >= game.WinThreshold || evil >= game.WinThreshold) && ri != len(log.Rounds)-1 {
			report("round %d played after a side reached %d", log.Rounds[ri+1].Number, game.WinThreshold)
			break
		}
	}

	if res := log.Result; res != nil {
		if fmt.Sprint(res.MissionResults) != fmt.Sprint(results) {
			report("result missions %v, log shows %v", res.MissionResults, results)
		}
		switch {
		case evil >= game.WinThreshold:
			if res.Winner != game.Evil || log.Assassination != nil {
				report("evil reached %d but winner=%s assassination=%v", evil, res.Winner, log.Assassination != nil)
			}
		case good >= game.WinThreshold:
			if log.Assassination == nil {
				report("good reached %d without an assassination", good)
			} else if res.Winner != log.Assassination.Winner() {
				report("winner %s disagrees with assassination", res.Winner)
			}
		default:
			report("match ended at %d-%d", good, evil)
		}
	}
	return problems
}

func checkDiscussion(round int, p history.Proposal, seats []string) []string {
	idx := -1
	for i, name := range seats {
		if name == p.Leader {
			idx = i
		}
	}
	if idx < 0 {
		return []string{fmt.Sprintf("round %d: unknown leader %s", round, p.Leader)}
	}
	want := make([]string, 0, len(seats)+1)
	want = append(want, p.Leader)
	for k := 1; k < len(seats); k++ {
		want = append(want, seats[(idx+k)%len(seats)])
	}
	want = append(want, p.Leader)
	if len(p.Discussion) != len(want) {
		return []string{fmt.Sprintf("round %d attempt %d: %d discussion turns, want %d", round, p.Attempt, len(p.Discussion), len(want))}
	}
	var problems []string
	for i, d := range p.Discussion {
		if d.Speaker != want[i] {
			problems = append(problems, fmt.Sprintf("round %d attempt %d: turn %d by %s, want %s", round, p.Attempt, i, d.Speaker, want[i]))
		}
	}
	return problems
}
