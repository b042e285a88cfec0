// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"regexp"
	"strings"
	"unicode"
)

var delimited = []*regexp.Regexp{
	regexp.MustCompile(`\[([^\]]+)\]`),
	regexp.MustCompile(`"([^"]+)"`),
	regexp.MustCompile(`'([^']+)'`),
}

// ExtractChoice finds one of options in free text. Options are tried in
// order by case-insensitive containment, then bracket or quote delimited
// substrings are compared exactly.
func ExtractChoice(text string, options []string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	lower := strings.ToLower(text)
	for _, opt := range options {
		if opt != "" && strings.Contains(lower, strings.ToLower(opt)) {
			return opt, true
		}
	}

	for _, re := range delimited {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			for _, opt := range options {
				if m[1] == opt {
					return opt, true
				}
			}
		}
	}
	return "", false
}

// ExtractTeam reads a comma or newline separated list of names. Unknown
// entries are dropped; the result is in names order and must hold exactly
// size distinct names.
func ExtractTeam(text string, names []string, size int) ([]string, bool) {
	picked := make(map[string]bool)
	for _, field := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' }) {
		field = strings.Trim(strings.TrimSpace(field), `[]"'.*`)
		for _, n := range names {
			if strings.EqualFold(field, n) {
				picked[n] = true
				break
			}
		}
	}
	if len(picked) != size {
		return nil, false
	}

	team := make([]string, 0, size)
	for _, n := range names {
		if picked[n] {
			team = append(team, n)
		}
	}
	return team, true
}

// TruncateSentences keeps at most n sentences of text and collapses
// whitespace. A sentence ends at '.', '!' or '?' followed by a space or the
// end of the text.
func TruncateSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if n <= 0 || text == "" {
		return ""
	}

	runes := []rune(text)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return string(runes[:i+1])
		}
	}
	return text
}
