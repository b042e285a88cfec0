// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"regexp"
	"strings"
)

var (
	// Reasoning models may leak their scratchpad, which can name the
	// speaker's role.
	reasoningBlock = regexp.MustCompile(`(?is)<think>.*?(</think>|$)`)
	templateTokens = regexp.MustCompile(`(?i)<\|[^|>]*\|>|\[/?INST\]|<</?SYS>>|</?(system|assistant|user)>`)
)

// MarkupFilter removes reasoning blocks and chat template tokens.
type MarkupFilter struct{}

// WithMarkupFilter adds a MarkupFilter.
func WithMarkupFilter() Option {
	return WithFilter(MarkupFilter{})
}

// ID implements Filter.
func (MarkupFilter) ID() string { return "markup" }

// Filter implements Filter.
func (f MarkupFilter) Filter(_ context.Context, text string) (string, []Redaction) {
	var red []Redaction
	for _, re := range []*regexp.Regexp{reasoningBlock, templateTokens} {
		text = re.ReplaceAllStringFunc(text, func(s string) string {
			red = append(red, Redaction{Rule: f.ID(), Original: s})
			return " "
		})
	}
	if red == nil {
		return text, nil
	}
	return strings.Join(strings.Fields(text), " "), red
}
