// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"regexp"
)

// Patterns aimed at the models reading the comment rather than at the
// players. Accusations, role claims and lies are fair play and not listed.
var injectionPatterns = []string{
	// Instruction override
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(your\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`,
	`(?i)new\s+instructions?\s*:`,

	// Persona switches
	`(?i)you\s+are\s+now\s+(a|an|the)\s+`,
	`(?i)(developer|debug|admin|god)\s+mode`,

	// Speaking as the game or the system
	`(?i)^\s*(system|assistant|game\s*master|moderator)\s*:`,
	`(?i)\bas\s+the\s+(system|game\s*master|moderator)\b`,

	// Dictating another seat's answer
	`(?i)\b(all\s+players|everyone|every\s+player)\s+must\s+(vote|answer|respond|play)\b`,
	`(?i)\byour\s+(vote|action|selection|final\s+team|assassination\s+target)\s*:`,
	`(?i)\b(respond|answer|reply)\s+(only\s+)?with\s+"?(approve|reject|success|fail)\b`,

	// Prompt extraction
	`(?i)(reveal|print|show|repeat)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions|role\s+card)`,
}

// InjectionDetector blocks comments that try to instruct the models of
// other seats.
type InjectionDetector struct {
	patterns []*regexp.Regexp
}

// NewInjectionDetector compiles the built-in patterns plus extra ones.
// Invalid extra patterns are skipped.
func NewInjectionDetector(extra ...string) *InjectionDetector {
	d := &InjectionDetector{}
	for _, p := range injectionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(p))
	}
	for _, p := range extra {
		if re, err := regexp.Compile(p); err == nil {
			d.patterns = append(d.patterns, re)
		}
	}
	return d
}

// WithInjectionDetector adds an InjectionDetector checker.
func WithInjectionDetector(extra ...string) Option {
	return WithChecker(NewInjectionDetector(extra...))
}

// ID implements Checker.
func (d *InjectionDetector) ID() string { return "injection" }

// Check implements Checker.
func (d *InjectionDetector) Check(_ context.Context, text string) Verdict {
	var matches []string
	for _, re := range d.patterns {
		if m := re.FindString(text); m != "" {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return Verdict{}
	}
	return Verdict{
		Blocked: true,
		Rule:    d.ID(),
		Reason:  "comment addresses the other models instead of the table",
		Matches: matches,
	}
}
