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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-todo/internal/command"
	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"go.uber.org/zap"
)

// Backend is the REST surface the orchestrator drives; *todo.Client satisfies it
type Backend interface {
	ListTasks(ctx context.Context, sort todo.SortMode, filter todo.DoneFilter) ([]todo.Task, error)
	Add(ctx context.Context, text string) (*todo.Reply, error)
	Toggle(ctx context.Context, id string) (*todo.Reply, error)
	Delete(ctx context.Context, id string) (*todo.Reply, error)
	DeleteByName(ctx context.Context, name string) (*todo.Reply, error)
	MarkByName(ctx context.Context, name string) (*todo.Reply, error)
	ClearAll(ctx context.Context) (*todo.Reply, error)
	ClearCompleted(ctx context.Context) (*todo.Reply, error)
	Update(ctx context.Context, update todo.TaskUpdate) (*todo.Reply, error)
	RecordVoiceEvent(ctx context.Context, event *events.VoiceEvent) error
}

var _ Backend = (*todo.Client)(nil)

// action is one backend round trip started from the loop
type action struct {
	name     string
	run      func(ctx context.Context, b Backend, sort todo.SortMode) (string, error)
	fallback string // spoken when the backend reply carries no message
	refresh  bool   // reload the task list on success
}

// outcome is what a finished action hands back to the loop
type outcome struct {
	action  string
	message string
	err     error
	tasks   []todo.Task
	sort    todo.SortMode
	listed  bool
}

func replyMessage(reply *todo.Reply, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if reply == nil {
		return "", nil
	}
	return reply.Message, nil
}

func addAction(text string) action {
	return action{
		name: "add",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.Add(ctx, text))
		},
		fallback: fmt.Sprintf("Added %s", text),
		refresh:  true,
	}
}

func markDoneAction(name string) action {
	return action{
		name: "mark_by_name",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.MarkByName(ctx, name))
		},
		fallback: fmt.Sprintf("Marked %s as done", name),
		refresh:  true,
	}
}

func deleteByNameAction(name string) action {
	return action{
		name: "delete_by_name",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.DeleteByName(ctx, name))
		},
		fallback: fmt.Sprintf("Deleted %s", name),
		refresh:  true,
	}
}

func deleteAction(id, name string) action {
	return action{
		name: "delete",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.Delete(ctx, id))
		},
		fallback: fmt.Sprintf("Deleted %s", name),
		refresh:  true,
	}
}

func toggleAction(id string) action {
	return action{
		name: "toggle",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.Toggle(ctx, id))
		},
		refresh: true,
	}
}

func updateAction(update todo.TaskUpdate) action {
	return action{
		name: "update",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.Update(ctx, update))
		},
		refresh: true,
	}
}

func clearAllAction() action {
	return action{
		name: "clear",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.ClearAll(ctx))
		},
		fallback: "All tasks cleared",
		refresh:  true,
	}
}

func clearCompletedAction() action {
	return action{
		name: "clear_completed",
		run: func(ctx context.Context, b Backend, _ todo.SortMode) (string, error) {
			return replyMessage(b.ClearCompleted(ctx))
		},
		fallback: "Completed tasks cleared",
		refresh:  true,
	}
}

func listAction(filter todo.DoneFilter) action {
	return action{
		name: "list",
		run: func(ctx context.Context, b Backend, sort todo.SortMode) (string, error) {
			tasks, err := b.ListTasks(ctx, sort, filter)
			if err != nil {
				return "", err
			}
			return Summarize(tasks, filter), nil
		},
	}
}

func refreshAction() action {
	return action{name: "refresh", refresh: true}
}

// actionFor maps a non-destructive intent onto its backend action
func actionFor(intent command.Intent) (action, bool) {
	switch intent.Kind {
	case command.KindAddTask:
		return addAction(intent.Name), true
	case command.KindMarkDone:
		return markDoneAction(intent.Name), true
	case command.KindListAll:
		return listAction(todo.FilterAll), true
	case command.KindListPending:
		return listAction(todo.FilterPending), true
	case command.KindListCompleted:
		return listAction(todo.FilterCompleted), true
	default:
		return action{}, false
	}
}

// execute runs an action off the loop; panics become error outcomes
func execute(ctx context.Context, b Backend, a action, sort todo.SortMode) (out outcome) {
	out = outcome{action: a.name, sort: sort}
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("Recovered from panic in backend action",
				zap.String("action", a.name),
				zap.Any("panic", r))
			out.err = fmt.Errorf("%s failed unexpectedly", a.name)
		}
	}()

	if a.run != nil {
		message, err := a.run(ctx, b, sort)
		if err != nil {
			out.err = err
			return out
		}
		out.message = message
		if out.message == "" {
			out.message = a.fallback
		}
	}

	if a.refresh {
		tasks, err := b.ListTasks(ctx, sort, todo.FilterAll)
		if err != nil {
			logging.LogWarn("Task list refresh failed", zap.String("action", a.name), zap.Error(err))
			if a.run == nil {
				out.err = err
			}
			return out
		}
		out.tasks = tasks
		out.listed = true
	}
	return out
}

// ErrorMessage is the user-facing text for a backend failure
func ErrorMessage(err error) string {
	var apiErr *todo.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "The to-do service took too long to answer."
	default:
		return "Sorry, I couldn't reach the to-do service."
	}
}

// Summarize is the spoken answer to a list intent
func Summarize(tasks []todo.Task, filter todo.DoneFilter) string {
	qualifier := ""
	switch filter {
	case todo.FilterPending:
		qualifier = "pending "
	case todo.FilterCompleted:
		qualifier = "completed "
	}

	if len(tasks) == 0 {
		return fmt.Sprintf("You have no %stasks.", qualifier)
	}

	noun := "tasks"
	if len(tasks) == 1 {
		noun = "task"
	}
	return fmt.Sprintf("You have %d %s%s: %s.", len(tasks), qualifier, noun, strings.Join(todo.Names(tasks), ", "))
}

// sortDescription is spoken after a sort change
func sortDescription(sort todo.SortMode) string {
	switch sort {
	case todo.SortPriority:
		return "Sorting by priority."
	case todo.SortCategory:
		return "Sorting by category."
	case todo.SortDue:
		return "Sorting by due date."
	default:
		return "Sorting by date added."
	}
}
