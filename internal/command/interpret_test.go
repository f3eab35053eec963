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
	"testing"

	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/stretchr/testify/assert"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		wantKind   Kind
		wantName   string
		wantSort   todo.SortMode
	}{
		{"add", "add buy milk", KindAddTask, "buy milk", ""},
		{"add mixed case and punctuation", "  Add   Buy Milk. ", KindAddTask, "buy milk", ""},
		{"remind me to", "remind me to call mom", KindAddTask, "call mom", ""},
		{"add strips list suffix", "add eggs to my list", KindAddTask, "eggs", ""},
		{"add keeps attributes for the backend", "add submit report with high priority by monday", KindAddTask, "submit report with high priority by monday", ""},
		{"bare add", "add", KindPromptForMissingArgument, "", ""},
		{"add only a list suffix", "add to my list", KindPromptForMissingArgument, "", ""},
		{"bare remind me to", "Remind me to", KindPromptForMissingArgument, "", ""},
		{"add with inner comma", "add, buy milk", KindAddTask, "buy milk", ""},
		{"add keeps decimals and apostrophes", "Add 2.5 kg of mom's flour.", KindAddTask, "2.5 kg of mom's flour", ""},
		{"add prefix inside a word", "address the envelope", KindUnrecognized, "", ""},

		{"mark as done", "mark buy milk as done", KindMarkDone, "buy milk", ""},
		{"mark done", "mark buy milk done", KindMarkDone, "buy milk", ""},
		{"mark as complete", "Mark the report as complete!", KindMarkDone, "the report", ""},
		{"mark with inner punctuation", "mark: buy milk, as done", KindMarkDone, "buy milk", ""},
		{"mark without a task", "mark as done", KindUnrecognized, "", ""},

		{"delete", "delete buy milk", KindDeleteByName, "buy milk", ""},
		{"remove from list", "remove call mom from my list", KindDeleteByName, "call mom", ""},

		{"clear completed", "clear completed tasks", KindClearCompleted, "", ""},
		{"clear all completed wins over clear all", "please clear all completed", KindClearCompleted, "", ""},
		{"clear all", "clear all", KindClearAll, "", ""},
		{"clear everything", "could you clear everything", KindClearAll, "", ""},
		{"clear the list", "clear the list", KindClearAll, "", ""},

		{"list all", "list all tasks", KindListAll, "", ""},
		{"what is on my list", "What's on my list?", KindListAll, "", ""},
		{"pending", "what tasks are pending", KindListPending, "", ""},
		{"not done", "which ones are not done", KindListPending, "", ""},
		{"completed", "show completed", KindListCompleted, "", ""},
		{"what have i done", "what have I done today", KindListCompleted, "", ""},

		{"sort by priority", "sort by priority", KindSetSortMode, "", todo.SortPriority},
		{"order by the category", "order tasks by the category", KindSetSortMode, "", todo.SortCategory},
		{"sort by due date", "sort my list by due date", KindSetSortMode, "", todo.SortDue},
		{"sort by deadline", "sort by deadline", KindSetSortMode, "", todo.SortDue},
		{"sort by date", "sort by date", KindSetSortMode, "", todo.SortDue},
		{"sort by added", "sort by added", KindSetSortMode, "", todo.SortCreated},
		{"sort by creation", "order by creation", KindSetSortMode, "", todo.SortCreated},
		{"sort with unknown key", "sort by colour", KindUnrecognized, "", ""},

		{"empty", "", KindUnrecognized, "", ""},
		{"whitespace", "   ", KindUnrecognized, "", ""},
		{"chatter", "what's the weather like", KindUnrecognized, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := Interpret(tt.transcript)
			assert.Equal(t, tt.wantKind, intent.Kind)
			assert.Equal(t, tt.wantName, intent.Name)
			assert.Equal(t, tt.wantSort, intent.Sort)
		})
	}
}

func TestInterpret_FirstMatchWins(t *testing.T) {
	// Starts with "add" so the later "clear all" phrase never applies
	intent := Interpret("add clear all the gutters")
	assert.Equal(t, KindAddTask, intent.Kind)
	assert.Equal(t, "clear all the gutters", intent.Name)

	// Does not start with "add" so the clear phrase wins
	assert.Equal(t, KindClearAll, Interpret("i want to clear all and add more").Kind)

	// Mark beats delete and list grammars
	assert.Equal(t, KindMarkDone, Interpret("mark remove the pending boxes as done").Kind)
}

func TestInterpret_DeterministicAndTotal(t *testing.T) {
	inputs := []string{
		"", "add", "add buy milk", "mark x as done", "delete", "delete x", "clear all",
		"\x00\xff", "🙂🙂🙂", "sort", "sort by", "mark as done", "remind me", "REMOVE   X",
	}

	for _, input := range inputs {
		first := Interpret(input)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, Interpret(input), "input %q", input)
		}
		assert.NotEmpty(t, first.Kind, "input %q", input)
	}
}

func TestIntent_Destructive(t *testing.T) {
	destructive := map[Kind]bool{
		KindClearAll:       true,
		KindClearCompleted: true,
		KindDeleteByName:   true,
	}

	for _, kind := range []Kind{
		KindAddTask, KindPromptForMissingArgument, KindMarkDone, KindDeleteByName,
		KindClearCompleted, KindClearAll, KindListAll, KindListPending, KindListCompleted,
		KindSetSortMode, KindUnrecognized,
	} {
		assert.Equal(t, destructive[kind], Intent{Kind: kind}.Destructive(), string(kind))
	}
}

func TestIntent_Entities(t *testing.T) {
	assert.Equal(t, map[string]string{"name": "buy milk"}, Interpret("add buy milk").Entities())
	assert.Equal(t, map[string]string{"sort": "due"}, Interpret("sort by deadline").Entities())
	assert.Empty(t, Interpret("clear all").Entities())
}
