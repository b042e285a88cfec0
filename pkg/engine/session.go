// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/history"
)

// Session runs a match in the background so a front end can answer the
// decisions of its human seats step by step.
type Session struct {
	match  *Match
	humans map[string]*actor.HumanActor
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result history.Result
	err    error
}

// PendingDecision is a request waiting for a human seat.
type PendingDecision struct {
	Seat    string
	Request actor.Request
}

// Go starts the match in its own goroutine.
func (m *Match) Go(ctx context.Context) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		match:  m,
		humans: m.Humans(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		res, err := m.Run(ctx)
		s.mu.Lock()
		s.result, s.err = res, err
		s.mu.Unlock()
	}()
	return s
}

// Match returns the running match.
func (s *Session) Match() *Match { return s.match }

// Phase returns the current phase of the match.
func (s *Session) Phase() Phase { return s.match.Phase() }

// Pending lists the decisions waiting for a human, by seat name.
func (s *Session) Pending() []PendingDecision {
	var out []PendingDecision
	for seat, h := range s.humans {
		if req, ok := h.Pending(); ok {
			out = append(out, PendingDecision{Seat: seat, Request: req})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Submit answers a pending request with raw text. The text goes through the
// same extraction as any other actor answer.
func (s *Session) Submit(requestID, decision string) error {
	for _, h := range s.humans {
		if req, ok := h.Pending(); ok && req.ID == requestID {
			return h.Respond(requestID, decision)
		}
	}
	return errors.New(errors.CodeNotFound, "no pending decision with this id", nil).
		WithContext("request_id", requestID)
}

// Done is closed when the match ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the match ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (history.Result, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return history.Result{}, errors.New(errors.CodeContextLost, "stopped waiting for match", ctx.Err())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Cancel stops the match; Wait then returns a context error.
func (s *Session) Cancel() { s.cancel() }
