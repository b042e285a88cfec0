// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"context"
	"sync"

	"github.com/jllopis/avalon/pkg/errors"
)

// HumanActor suspends each request until a front end answers it with
// Respond. It imposes no timeout of its own.
type HumanActor struct {
	mu      sync.Mutex
	pending *pendingRequest
	notify  chan Request
}

type pendingRequest struct {
	req    Request
	answer chan string
}

// NewHuman creates a human-backed actor.
func NewHuman() *HumanActor {
	return &HumanActor{notify: make(chan Request, 1)}
}

// Submit implements Actor. It blocks until Respond is called with the
// request's ID or ctx is done.
func (h *HumanActor) Submit(ctx context.Context, req Request) (string, error) {
	p := &pendingRequest{req: req, answer: make(chan string, 1)}

	h.mu.Lock()
	if h.pending != nil {
		h.mu.Unlock()
		return "", errors.New(errors.CodeInternal, "human actor already has a pending request", nil).
			WithContext("pending", h.pending.req.ID).
			WithRecoverable(false)
	}
	h.pending = p
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.pending == p {
			h.pending = nil
		}
		h.mu.Unlock()
	}()

	// Replace any stale notification nobody picked up.
	select {
	case <-h.notify:
	default:
	}
	select {
	case h.notify <- req:
	default:
	}

	select {
	case answer := <-p.answer:
		return answer, nil
	case <-ctx.Done():
		return "", errors.New(errors.CodeContextLost, "human decision canceled", ctx.Err()).
			WithContext("request_id", req.ID)
	}
}

// Pending returns the request awaiting an answer, if any.
func (h *HumanActor) Pending() (Request, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return Request{}, false
	}
	return h.pending.req, true
}

// Requests delivers each new pending request. Front ends may also poll
// Pending instead.
func (h *HumanActor) Requests() <-chan Request {
	return h.notify
}

// Respond answers the pending request with raw text.
func (h *HumanActor) Respond(requestID, decision string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || h.pending.req.ID != requestID {
		return errors.New(errors.CodeNotFound, "no pending request with this id", nil).
			WithContext("request_id", requestID)
	}
	select {
	case h.pending.answer <- decision:
		return nil
	default:
		return errors.New(errors.CodeInvalidInput, "request already answered", nil).
			WithContext("request_id", requestID)
	}
}

// Info implements Describer.
func (h *HumanActor) Info() Info {
	return Info{Type: "human", Interactive: true}
}
