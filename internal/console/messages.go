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

package console

import (
	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/loqalabs/loqa-todo/internal/voice"
)

// Messages delivered to the bubbletea program from the orchestrator goroutines

type stateMsg struct {
	state voice.State
}

type dialogMsg struct {
	dialog voice.Dialog
}

type tasksMsg struct {
	tasks []todo.Task
	sort  todo.SortMode
}

type statusMsg struct {
	text    string
	isError bool
}

type spokenMsg struct {
	text string
}

type logKind int

const (
	logStatus logKind = iota
	logError
	logSpoken
	logTyped
)

type logLine struct {
	kind logKind
	text string
}
