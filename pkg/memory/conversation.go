// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory keeps the private prompt/answer history of language-model
// seats. Each seat of a match owns one session; the public match record
// lives in the history package.
package memory

import (
	"context"
	"time"
)

// Message roles stored in a session.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one remembered turn of a seat.
type ConversationMessage struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ConversationMemory stores the turns of each session in order.
type ConversationMemory interface {
	AppendMessage(ctx context.Context, sessionID string, msg ConversationMessage) error
	// GetMessages returns the session after truncation, oldest first.
	GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error)
	Clear(ctx context.Context, sessionID string) error
}

// SessionID names the session of one seat in one match.
func SessionID(matchID, seat string) string {
	return matchID + "/" + seat
}

// TruncationStrategy bounds what is replayed to the model.
type TruncationStrategy interface {
	Truncate(ctx context.Context, messages []ConversationMessage) ([]ConversationMessage, error)
}

// ConversationConfig configures a store.
type ConversationConfig struct {
	// TruncationStrategy applies on read. Stored messages are never dropped.
	TruncationStrategy TruncationStrategy
}

// WindowStrategy keeps the newest MaxMessages messages.
type WindowStrategy struct {
	MaxMessages int
	// KeepSystemMessages keeps system messages outside the window.
	KeepSystemMessages bool
}

// NewWindowStrategy creates a WindowStrategy.
func NewWindowStrategy(maxMessages int, keepSystem bool) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages, KeepSystemMessages: keepSystem}
}

// Truncate implements TruncationStrategy. The window never starts with an
// answer whose question was cut.
func (w *WindowStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	if w.MaxMessages <= 0 || len(messages) <= w.MaxMessages {
		return messages, nil
	}
	var system, turns []ConversationMessage
	if w.KeepSystemMessages {
		system, turns = splitSystem(messages)
	} else {
		turns = messages
	}
	keep := max(w.MaxMessages-len(system), 0)
	if len(turns) > keep {
		turns = dropOrphanAnswer(turns[len(turns)-keep:])
	}
	return append(system, turns...), nil
}

// TokenStrategy keeps the newest messages that fit MaxTokens.
type TokenStrategy struct {
	MaxTokens int
	// TokenCounter estimates one message; the default is four characters
	// per token.
	TokenCounter       func(msg ConversationMessage) int
	KeepSystemMessages bool
}

// NewTokenStrategy creates a TokenStrategy.
func NewTokenStrategy(maxTokens int, keepSystem bool) *TokenStrategy {
	return &TokenStrategy{MaxTokens: maxTokens, KeepSystemMessages: keepSystem}
}

// Truncate implements TruncationStrategy.
func (t *TokenStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	count := t.TokenCounter
	if count == nil {
		count = func(msg ConversationMessage) int { return len(msg.Content) / 4 }
	}

	total := 0
	for _, msg := range messages {
		total += count(msg)
	}
	if total <= t.MaxTokens {
		return messages, nil
	}

	var system, turns []ConversationMessage
	if t.KeepSystemMessages {
		system, turns = splitSystem(messages)
	} else {
		turns = messages
	}
	budget := t.MaxTokens
	for _, msg := range system {
		budget -= count(msg)
	}
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		n := count(turns[i])
		if n > budget {
			break
		}
		budget -= n
		start = i
	}
	return append(system, dropOrphanAnswer(turns[start:])...), nil
}

func splitSystem(messages []ConversationMessage) (system, turns []ConversationMessage) {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			turns = append(turns, msg)
		}
	}
	return system, turns
}

func dropOrphanAnswer(turns []ConversationMessage) []ConversationMessage {
	if len(turns) > 0 && turns[0].Role == RoleAssistant {
		return turns[1:]
	}
	return turns
}
