// Package moderation sanitizes chat content before it reaches any handler:
// profanity is masked via an Aho-Corasick automaton and HTML is reduced to
// a small inline allow-list.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"voicehub/errors"
)

// Moderator masks censored words in place while preserving text length.
type Moderator struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewModerator builds the automaton from the lowercased word list.
func NewModerator(words []string, mask rune) (*Moderator, error) {
	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		patterns = append(patterns, lowerRunes([]rune(w)))
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: m, mask: mask}, nil
}

// Censor masks every censored word in text and returns the sanitized
// string plus the matched words. Matching is case-insensitive; the
// original casing and spacing of the untouched parts are preserved.
func (m *Moderator) Censor(text string) (string, []string) {
	original := []rune(text)
	if len(original) == 0 {
		return text, nil
	}

	spans := m.machine.MultiPatternSearch(lowerRunes(original), false)
	if len(spans) == 0 {
		return text, nil
	}

	var found []string
	for _, span := range spans {
		end := span.Pos + len(span.Word)
		if span.Pos < 0 || end > len(original) {
			continue
		}
		found = append(found, string(span.Word))
		for i := span.Pos; i < end; i++ {
			original[i] = m.mask
		}
	}
	return string(original), found
}

func lowerRunes(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}
