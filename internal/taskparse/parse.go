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

// Package taskparse extracts name, priority, category and due date from a
// free-text "add" command such as
// "add submit HCI report with high priority by monday in school category".
package taskparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/loqalabs/loqa-todo/internal/todo"
)

// Parsed is the structured form of an add command
type Parsed struct {
	Name     string
	Priority int
	Category string
	DueDate  *time.Time
}

var (
	leadingPhrases = compileAll(
		`^i need to add\s+`,
		`^i need to\s+`,
		`^i have to\s+`,
		`^please add\s+`,
		`^please\s+`,
		`^can you add\s+`,
		`^could you add\s+`,
		`^can you\s+`,
		`^could you\s+`,
		`^remind me to\s+`,
		`^remind me\s+`,
		`^add\s+`,
		`^create\s+`,
		`^make\s+`,
	)

	highPriority   = compileAll(`with high priority`, `high priority`, `urgent`, `very important`)
	mediumPriority = compileAll(`with medium priority`, `medium priority`)
	lowPriority    = compileAll(`with low priority`, `low priority`)

	categoryPattern = regexp.MustCompile(`(?i)in ([\w\s]+?) category`)
	relativeDue     = regexp.MustCompile(`(?i)\bby\s+(today|tomorrow|tonight|this evening|this afternoon|next week)\b`)
	weekdayDue      = regexp.MustCompile(`(?i)\bby\s+(?:next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	absoluteDue     = regexp.MustCompile(`(?i)\bby\s+(.+)$`)
	fromBy          = regexp.MustCompile(`(?i)\bby\b.*$`)
	whitespace      = regexp.MustCompile(`\s+`)

	timeWords = compileAll(
		`\btomorrow\b`, `\btoday\b`, `\btonight\b`, `\bthis evening\b`, `\bthis afternoon\b`,
		`\bnext week\b`, `\bnext month\b`,
		`\bmonday\b`, `\btuesday\b`, `\bwednesday\b`, `\bthursday\b`, `\bfriday\b`,
		`\bsaturday\b`, `\bsunday\b`,
	)

	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
		"saturday": time.Saturday,
	}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, pattern := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + pattern)
	}
	return compiled
}

func removeAll(text string, patterns []*regexp.Regexp) string {
	for _, pattern := range patterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return text
}

// Parse extracts task attributes from text. Relative dates resolve against now.
// A command whose every word is an attribute keeps the original text as its name.
func Parse(text string, now time.Time) Parsed {
	original := strings.TrimSpace(text)
	clean := original

	for _, pattern := range leadingPhrases {
		clean = strings.TrimSpace(pattern.ReplaceAllString(clean, ""))
	}

	result := Parsed{Priority: todo.PriorityLow, Category: todo.DefaultCategory}

	lower := strings.ToLower(clean)
	switch {
	case containsAny(lower, "high priority", "urgent", "very important"):
		result.Priority = todo.PriorityHigh
		clean = removeAll(clean, highPriority)
	case strings.Contains(lower, "medium priority"):
		result.Priority = todo.PriorityMedium
		clean = removeAll(clean, mediumPriority)
	case strings.Contains(lower, "low priority"):
		clean = removeAll(clean, lowPriority)
	}
	clean = strings.TrimSpace(clean)

	if m := categoryPattern.FindStringSubmatch(clean); m != nil {
		result.Category = strings.TrimSpace(m[1])
		strip := regexp.MustCompile(`(?i)in ` + regexp.QuoteMeta(m[1]) + ` category`)
		clean = strings.TrimSpace(strip.ReplaceAllString(clean, ""))
	}

	if m := relativeDue.FindStringSubmatch(clean); m != nil {
		due := relativeDate(strings.ToLower(m[1]), now)
		result.DueDate = &due
		clean = strings.TrimSpace(relativeDue.ReplaceAllString(clean, ""))
	}

	if result.DueDate == nil {
		if m := weekdayDue.FindStringSubmatch(clean); m != nil {
			due := nextWeekday(now, weekdays[strings.ToLower(m[1])])
			result.DueDate = &due
		} else if m := absoluteDue.FindStringSubmatch(clean); m != nil {
			if due, err := absoluteDate(strings.TrimSpace(m[1]), now); err == nil {
				result.DueDate = &due
			}
		}
	}

	if result.DueDate != nil {
		clean = strings.TrimSpace(fromBy.ReplaceAllString(clean, ""))
	}

	if result.DueDate == nil {
		lowerOriginal := strings.ToLower(original)
		switch {
		case strings.Contains(lowerOriginal, " tomorrow") || strings.HasPrefix(lowerOriginal, "tomorrow"):
			due := now.AddDate(0, 0, 1)
			result.DueDate = &due
		case strings.Contains(lowerOriginal, " today") || strings.HasPrefix(lowerOriginal, "today"):
			due := now
			result.DueDate = &due
		}
	}

	clean = removeAll(clean, timeWords)
	clean = strings.Trim(whitespace.ReplaceAllString(clean, " "), " ,.")
	if clean == "" {
		clean = original
	}
	result.Name = clean

	return result
}

// Describe renders the spoken confirmation for an added task
func (p Parsed) Describe() string {
	msg := fmt.Sprintf("Task '%s' added", p.Name)
	if word := todo.PriorityWord(p.Priority); word != "" {
		msg += fmt.Sprintf(" with %s priority", word)
	}
	if p.DueDate != nil {
		msg += " due " + p.DueDate.Format("Jan 02, 2006")
	}
	return msg
}

func relativeDate(keyword string, now time.Time) time.Time {
	switch keyword {
	case "tomorrow":
		return now.AddDate(0, 0, 1)
	case "tonight", "this evening":
		return atHour(now, 20)
	case "this afternoon":
		return atHour(now, 15)
	case "next week":
		return now.AddDate(0, 0, 7)
	default:
		return now
	}
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// nextWeekday returns the next occurrence of day, counting today
func nextWeekday(now time.Time, day time.Weekday) time.Time {
	ahead := (int(day) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, ahead)
}

// absoluteDate parses a date phrase; a phrase without a year gets the current one
func absoluteDate(phrase string, now time.Time) (time.Time, error) {
	phrase = strings.Trim(phrase, " ,.")
	due, err := dateparse.ParseIn(phrase, now.Location())
	if err == nil {
		return due, nil
	}

	withYear := fmt.Sprintf("%s %d", phrase, now.Year())
	if due, yearErr := dateparse.ParseIn(withYear, now.Location()); yearErr == nil {
		return due, nil
	}
	return time.Time{}, err
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
