// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/jllopis/avalon/pkg/actor"
)

// ScriptedActor answers requests from queued responses, per-kind handlers
// or a default. It records every request it receives.
type ScriptedActor struct {
	mu           sync.Mutex
	responses    []ScriptedAnswer
	handlers     map[actor.Kind]func(actor.Request) (string, error)
	defaultText  string
	hasDefault   bool
	defaultError error
	requests     []actor.Request
}

// ScriptedAnswer is one queued answer.
type ScriptedAnswer struct {
	Text  string
	Error error
	// Condition restricts the answer to matching requests. Non-matching
	// requests leave it queued.
	Condition func(req actor.Request) bool
}

// NewScriptedActor creates an actor with no script.
func NewScriptedActor() *ScriptedActor {
	return &ScriptedActor{handlers: make(map[actor.Kind]func(actor.Request) (string, error))}
}

// AddResponse queues an answer for the next request.
func (a *ScriptedActor) AddResponse(text string) *ScriptedActor {
	return a.AddScriptedAnswer(ScriptedAnswer{Text: text})
}

// AddResponseFor queues an answer for the next request of kind.
func (a *ScriptedActor) AddResponseFor(kind actor.Kind, text string) *ScriptedActor {
	return a.AddScriptedAnswer(ScriptedAnswer{
		Text:      text,
		Condition: func(req actor.Request) bool { return req.Kind == kind },
	})
}

// AddErrorResponse queues an error.
func (a *ScriptedActor) AddErrorResponse(err error) *ScriptedActor {
	return a.AddScriptedAnswer(ScriptedAnswer{Error: err})
}

// AddScriptedAnswer queues a fully configured answer.
func (a *ScriptedActor) AddScriptedAnswer(ans ScriptedAnswer) *ScriptedActor {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = append(a.responses, ans)
	return a
}

// Handle answers every request of kind with fn once the queue has nothing
// for it.
func (a *ScriptedActor) Handle(kind actor.Kind, fn func(req actor.Request) (string, error)) *ScriptedActor {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[kind] = fn
	return a
}

// Always answers every request of kind with text.
func (a *ScriptedActor) Always(kind actor.Kind, text string) *ScriptedActor {
	return a.Handle(kind, func(actor.Request) (string, error) { return text, nil })
}

// WithDefault sets the answer used when nothing else applies.
func (a *ScriptedActor) WithDefault(text string) *ScriptedActor {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaultText = text
	a.hasDefault = true
	return a
}

// WithDefaultError sets the error returned when nothing else applies.
func (a *ScriptedActor) WithDefaultError(err error) *ScriptedActor {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaultError = err
	return a
}

// Submit implements actor.Actor.
func (a *ScriptedActor) Submit(_ context.Context, req actor.Request) (string, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)

	for i, ans := range a.responses {
		if ans.Condition != nil && !ans.Condition(req) {
			continue
		}
		a.responses = append(a.responses[:i:i], a.responses[i+1:]...)
		a.mu.Unlock()
		return ans.Text, ans.Error
	}

	fn, ok := a.handlers[req.Kind]
	text, hasDefault, defErr := a.defaultText, a.hasDefault, a.defaultError
	a.mu.Unlock()

	switch {
	case ok:
		return fn(req)
	case hasDefault:
		return text, nil
	case defErr != nil:
		return "", defErr
	}
	return "", fmt.Errorf("no scripted answer for %s request %d", req.Kind, len(a.Requests()))
}

// Info implements actor.Describer.
func (a *ScriptedActor) Info() actor.Info {
	return actor.Info{Type: "scripted"}
}

// Requests returns the recorded requests.
func (a *ScriptedActor) Requests() []actor.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]actor.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// RequestsOf returns the recorded requests of kind.
func (a *ScriptedActor) RequestsOf(kind actor.Kind) []actor.Request {
	var out []actor.Request
	for _, r := range a.Requests() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// CallCount returns the number of requests received.
func (a *ScriptedActor) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Table gives every seat its own ScriptedActor.
type Table map[string]*ScriptedActor

// NewTable creates one scripted actor per name.
func NewTable(names ...string) Table {
	t := make(Table, len(names))
	for _, n := range names {
		t[n] = NewScriptedActor()
	}
	return t
}

// Actors converts the table for engine options.
func (t Table) Actors() map[string]actor.Actor {
	out := make(map[string]actor.Actor, len(t))
	for n, a := range t {
		out[n] = a
	}
	return out
}

// Always scripts kind for every seat.
func (t Table) Always(kind actor.Kind, text string) Table {
	for _, a := range t {
		a.Always(kind, text)
	}
	return t
}

// Handle scripts kind for every seat.
func (t Table) Handle(kind actor.Kind, fn func(req actor.Request) (string, error)) Table {
	for _, a := range t {
		a.Handle(kind, fn)
	}
	return t
}
