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

package command

import (
	"regexp"
	"strings"

	"github.com/loqalabs/loqa-todo/internal/todo"
)

// Kind identifies the interpreted intent
type Kind string

const (
	KindAddTask                  Kind = "add_task"
	KindPromptForMissingArgument Kind = "prompt_for_missing_argument"
	KindMarkDone                 Kind = "mark_done"
	KindDeleteByName             Kind = "delete_by_name"
	KindClearCompleted           Kind = "clear_completed"
	KindClearAll                 Kind = "clear_all"
	KindListAll                  Kind = "list_all"
	KindListPending              Kind = "list_pending"
	KindListCompleted            Kind = "list_completed"
	KindSetSortMode              Kind = "set_sort_mode"
	KindUnrecognized             Kind = "unrecognized"
)

// Intent is the structured result of interpreting a transcript
type Intent struct {
	Kind Kind
	// Name is the task name for AddTask, MarkDone and DeleteByName
	Name string
	// Sort is set for SetSortMode
	Sort todo.SortMode
	// Transcript is the normalized input
	Transcript string
}

// Destructive reports whether executing the intent requires confirmation
func (i Intent) Destructive() bool {
	switch i.Kind {
	case KindClearAll, KindClearCompleted, KindDeleteByName:
		return true
	default:
		return false
	}
}

// Entities returns the intent parameters as a flat map for event logging
func (i Intent) Entities() map[string]string {
	entities := make(map[string]string)
	if i.Name != "" {
		entities["name"] = i.Name
	}
	if i.Sort != "" {
		entities["sort"] = string(i.Sort)
	}
	return entities
}

var (
	addPattern      = regexp.MustCompile(`^(?:add|remind me to)(?:\s+|$)`)
	listSuffix      = regexp.MustCompile(`\s+(?:to|on|onto|in|from) (?:my|the) (?:to do |todo |to-do )?list$`)
	markDonePattern = regexp.MustCompile(`^mark (.+?) (?:as )?(?:done|complete|completed|finished)$`)
	deletePattern   = regexp.MustCompile(`^(?:delete|remove) (.+)$`)
	punctuation     = regexp.MustCompile(`[,!?;:"]+|\.+(?:\s|$)|(?:^|\s)\.+`)
	sortPattern     = regexp.MustCompile(`\b(?:sort|order)\b.*?\bby\s+(?:the\s+)?(priority|category|due date|due|date|deadline|created|creation|added)\b`)

	clearCompletedPhrases = []string{
		"clear completed", "clear finished", "clear done", "clear all completed",
	}
	clearAllPhrases = []string{
		"clear all", "clear everything", "clear the list", "clear my list", "clear list",
	}
	listAllPhrases = []string{
		"list all tasks", "show all tasks", "read all tasks", "list my tasks", "list tasks",
		"show my tasks", "show tasks", "what are my tasks", "what's on my list",
		"what is on my list", "read my tasks", "list everything",
	}
	listPendingPhrases = []string{
		"pending", "not done", "unfinished", "incomplete", "remaining", "still to do", "left to do",
	}
	listCompletedPhrases = []string{
		"completed tasks", "finished tasks", "done tasks", "what have i done",
		"what did i finish", "list completed", "show completed",
	}
)

// rule is one entry of the ordered grammar; the first rule returning ok wins
type rule func(text string) (Intent, bool)

var grammar = []rule{
	matchAdd,
	matchMarkDone,
	matchDelete,
	matchPhrases(KindClearCompleted, clearCompletedPhrases),
	matchPhrases(KindClearAll, clearAllPhrases),
	matchPhrases(KindListAll, listAllPhrases),
	matchPhrases(KindListPending, listPendingPhrases),
	matchPhrases(KindListCompleted, listCompletedPhrases),
	matchSort,
}

// Interpret maps a transcript to exactly one intent. It is pure and never fails:
// anything the grammar does not cover is KindUnrecognized.
func Interpret(transcript string) Intent {
	text := Normalize(transcript)

	for _, match := range grammar {
		if intent, ok := match(text); ok {
			intent.Transcript = text
			return intent
		}
	}

	return Intent{Kind: KindUnrecognized, Transcript: text}
}

// Normalize lowercases, turns sentence punctuation into spaces and collapses
// whitespace. Apostrophes, hyphens and decimal points stay inside words.
func Normalize(transcript string) string {
	text := punctuation.ReplaceAllString(strings.ToLower(transcript), " ")
	return strings.Join(strings.Fields(text), " ")
}

func matchAdd(text string) (Intent, bool) {
	loc := addPattern.FindStringIndex(text)
	if loc == nil {
		return Intent{}, false
	}

	name := strings.TrimSpace(text[loc[1]:])
	name = strings.TrimSpace(listSuffix.ReplaceAllString(" "+name, ""))
	if name == "" {
		return Intent{Kind: KindPromptForMissingArgument}, true
	}
	return Intent{Kind: KindAddTask, Name: name}, true
}

func matchMarkDone(text string) (Intent, bool) {
	m := markDonePattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	// "mark as done" names no task
	name := strings.TrimSpace(m[1])
	if name == "as" {
		return Intent{}, false
	}
	return Intent{Kind: KindMarkDone, Name: name}, true
}

func matchDelete(text string) (Intent, bool) {
	m := deletePattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	name := strings.TrimSpace(listSuffix.ReplaceAllString(" "+m[1], ""))
	if name == "" {
		return Intent{}, false
	}
	return Intent{Kind: KindDeleteByName, Name: name}, true
}

func matchPhrases(kind Kind, phrases []string) rule {
	return func(text string) (Intent, bool) {
		for _, phrase := range phrases {
			if strings.Contains(text, phrase) {
				return Intent{Kind: kind}, true
			}
		}
		return Intent{}, false
	}
}

func matchSort(text string) (Intent, bool) {
	m := sortPattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	var mode todo.SortMode
	switch m[1] {
	case "priority":
		mode = todo.SortPriority
	case "category":
		mode = todo.SortCategory
	case "due date", "due", "date", "deadline":
		mode = todo.SortDue
	default:
		mode = todo.SortCreated
	}
	return Intent{Kind: KindSetSortMode, Sort: mode}, true
}
