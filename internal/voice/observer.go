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

import "github.com/loqalabs/loqa-todo/internal/todo"

// Observer renders orchestrator output. Calls arrive on the orchestrator
// goroutine and must not block.
type Observer interface {
	StateChanged(state State)
	DialogChanged(dialog Dialog)
	TasksChanged(tasks []todo.Task, sort todo.SortMode)
	Status(message string, isError bool)
}

// NopObserver discards everything
type NopObserver struct{}

func (NopObserver) StateChanged(State)                      {}
func (NopObserver) DialogChanged(Dialog)                    {}
func (NopObserver) TasksChanged([]todo.Task, todo.SortMode) {}
func (NopObserver) Status(string, bool)                     {}
