/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package voice

import (
	"strings"
	"unicode"
)

// NormalizeSpeech lowercases text, turns punctuation into spaces and collapses whitespace
func NormalizeSpeech(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// WakeMatcher detects any of a literal list of wake phrase variants.
// Matching is whole-word containment after normalization, not raw substring
// containment: a variant only matches on word boundaries, so "they to do"
// does not wake for "hey to do" and "hey todos" does not wake for "hey todo".
// There is no edit distance.
type WakeMatcher struct {
	variants []string
}

// NewWakeMatcher normalizes and deduplicates the variants
func NewWakeMatcher(phrases []string) *WakeMatcher {
	seen := make(map[string]bool, len(phrases))
	variants := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		normalized := NormalizeSpeech(phrase)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		variants = append(variants, normalized)
	}
	return &WakeMatcher{variants: variants}
}

// Heard reports whether transcript contains a wake phrase
func (m *WakeMatcher) Heard(transcript string) bool {
	_, ok := m.Match(transcript)
	return ok
}

// Match returns the first variant found in transcript
func (m *WakeMatcher) Match(transcript string) (string, bool) {
	padded := " " + NormalizeSpeech(transcript) + " "
	for _, variant := range m.variants {
		if strings.Contains(padded, " "+variant+" ") {
			return variant, true
		}
	}
	return "", false
}

// Variants returns the normalized phrase list
func (m *WakeMatcher) Variants() []string {
	return append([]string(nil), m.variants...)
}

// Reply is a classified answer to a confirmation question
type Reply int

const (
	ReplyUnknown Reply = iota
	ReplyAccept
	ReplyDecline
)

// ReplyMatcher classifies confirmation answers against accept and decline vocabularies
type ReplyMatcher struct {
	accept  map[string]bool
	decline map[string]bool
}

// NewReplyMatcher builds a matcher; words are normalized
func NewReplyMatcher(accept, decline []string) *ReplyMatcher {
	return &ReplyMatcher{accept: wordSet(accept), decline: wordSet(decline)}
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, word := range words {
		if normalized := NormalizeSpeech(word); normalized != "" {
			set[normalized] = true
		}
	}
	return set
}

// Classify returns the meaning of the first vocabulary word in transcript
func (m *ReplyMatcher) Classify(transcript string) Reply {
	for _, token := range strings.Fields(NormalizeSpeech(transcript)) {
		switch {
		case m.accept[token]:
			return ReplyAccept
		case m.decline[token]:
			return ReplyDecline
		}
	}
	return ReplyUnknown
}
