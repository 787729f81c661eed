// Package moderation censors configured words in message content before it
// is stored.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// leet maps look-alike characters back to the letter they stand for.
var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Moderator masks every occurrence of a censored word, including spellings
// hidden behind leet substitutions, case or interleaved punctuation.
type Moderator struct {
	log         *slog.Logger
	matcher     *goahocorasick.Machine
	replacement rune
}

// folded is text reduced to the form words are matched in. source[i] is the
// position in the input of folded rune i.
type folded struct {
	runes  []rune
	source []int
}

// fold lowercases, undoes leet and drops separators, remembering where each
// kept rune came from.
func fold(input []rune) folded {
	f := folded{runes: make([]rune, 0, len(input)), source: make([]int, 0, len(input))}
	for pos, r := range input {
		r = lo.ValueOr(leet, r, r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.source = append(f.source, pos)
	}
	return f
}

// NewModerator builds the automaton over the folded word list. An empty list
// yields a moderator that leaves content untouched.
func NewModerator(words []string, replacement rune, log *slog.Logger) (*Moderator, error) {
	m := &Moderator{log: log, replacement: replacement}

	patterns := lo.FilterMap(lo.Uniq(words), func(word string, _ int) ([]rune, bool) {
		pattern := fold([]rune(word)).runes
		return pattern, len(pattern) > 0
	})
	if len(patterns) == 0 {
		return m, nil
	}

	matcher := new(goahocorasick.Machine)
	if err := matcher.Build(patterns); err != nil {
		return nil, err
	}
	m.matcher = matcher
	return m, nil
}

// Censor replaces each matched word with the replacement rune, from its first
// to its last input rune, separators in between included.
func (m *Moderator) Censor(content string) string {
	if m.matcher == nil || content == "" {
		return content
	}
	input := []rune(content)
	text := fold(input)
	if len(text.runes) == 0 {
		return content
	}

	hits := m.matcher.MultiPatternSearch(text.runes, false)
	if len(hits) == 0 {
		return content
	}
	for _, hit := range hits {
		last := hit.Pos + len(hit.Word) - 1
		if hit.Pos < 0 || last >= len(text.source) {
			continue
		}
		for pos := text.source[hit.Pos]; pos <= text.source[last]; pos++ {
			input[pos] = m.replacement
		}
	}
	m.log.Debug("Censored message content", "matches", len(hits))
	return string(input)
}
