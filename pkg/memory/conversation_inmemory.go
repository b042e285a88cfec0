// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryConversation keeps sessions for the lifetime of the process.
// One store may serve every seat of several matches.
type InMemoryConversation struct {
	mu       sync.RWMutex
	sessions map[string][]ConversationMessage
	config   ConversationConfig
	now      func() time.Time
}

// NewInMemoryConversation creates an empty store.
func NewInMemoryConversation(config ConversationConfig) *InMemoryConversation {
	return &InMemoryConversation{
		sessions: make(map[string][]ConversationMessage),
		config:   config,
		now:      time.Now,
	}
}

// AppendMessage implements ConversationMemory. Missing ID, session and
// timestamp are filled in.
func (m *InMemoryConversation) AppendMessage(_ context.Context, sessionID string, msg ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}

	m.mu.Lock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msg)
	m.mu.Unlock()
	return nil
}

// GetMessages implements ConversationMemory.
func (m *InMemoryConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	m.mu.RLock()
	messages := append([]ConversationMessage(nil), m.sessions[sessionID]...)
	m.mu.RUnlock()

	if m.config.TruncationStrategy == nil || len(messages) == 0 {
		return messages, nil
	}
	return m.config.TruncationStrategy.Truncate(ctx, messages)
}

// Clear implements ConversationMemory.
func (m *InMemoryConversation) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// ClearMatch drops every seat session of a match and reports how many
// were removed.
func (m *InMemoryConversation) ClearMatch(matchID string) int {
	prefix := SessionID(matchID, "")
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.sessions {
		if strings.HasPrefix(id, prefix) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Sessions lists session IDs in order.
func (m *InMemoryConversation) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MessageCount counts stored messages, before truncation.
func (m *InMemoryConversation) MessageCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}
