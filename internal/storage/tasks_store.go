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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/taskparse"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"go.uber.org/zap"
)

const taskColumns = `id, name, done, priority, category, due_date, created_at`

// TasksStore handles database operations for tasks
type TasksStore struct {
	db  *Database
	now func() time.Time
}

// NewTasksStore creates a new tasks store
func NewTasksStore(db *Database) *TasksStore {
	return &TasksStore{db: db, now: time.Now}
}

// List returns tasks in the requested order, optionally filtered by completion
func (s *TasksStore) List(ctx context.Context, sort todo.SortMode, filter todo.DoneFilter) ([]todo.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`

	var args []interface{}
	switch filter {
	case todo.FilterCompleted:
		query += " WHERE done = ?"
		args = append(args, true)
	case todo.FilterPending:
		query += " WHERE done = ?"
		args = append(args, false)
	}

	query += " ORDER BY " + orderClause(sort)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []todo.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// orderClause maps a sort mode to SQL; ties always fall back to creation order
func orderClause(sort todo.SortMode) string {
	switch sort {
	case todo.SortPriority:
		return "priority DESC, created_at ASC, rowid ASC"
	case todo.SortDue:
		return "due_date IS NULL, due_date ASC, created_at ASC, rowid ASC"
	case todo.SortCategory:
		return "category COLLATE NOCASE ASC, created_at ASC, rowid ASC"
	default:
		return "created_at ASC, rowid ASC"
	}
}

// Add inserts a parsed task. Names are unique case-insensitively.
func (s *TasksStore) Add(ctx context.Context, parsed taskparse.Parsed) (*todo.Task, error) {
	name := strings.TrimSpace(parsed.Name)
	if name == "" {
		return nil, todo.ErrEmptyTaskName
	}

	if _, err := s.FindByName(ctx, name); err == nil {
		return nil, todo.ErrDuplicateTask
	} else if !errors.Is(err, todo.ErrTaskNotFound) {
		return nil, err
	}

	priority := parsed.Priority
	if priority < todo.PriorityLow || priority > todo.PriorityHigh {
		priority = todo.PriorityLow
	}
	category := strings.TrimSpace(parsed.Category)
	if category == "" {
		category = todo.DefaultCategory
	}

	task := &todo.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Priority:  priority,
		Category:  category,
		CreatedAt: todo.Timestamp{Time: s.now().UTC()},
	}
	if parsed.DueDate != nil {
		task.DueDate = todo.NewTimestamp(parsed.DueDate.UTC())
	}

	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Name, task.Done, task.Priority, task.Category, nullTime(task.DueDate), task.CreatedAt.Time,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, todo.ErrDuplicateTask
		}
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	logging.LogDatabaseOperation("INSERT", "tasks", zap.String("task_id", task.ID))
	return task, nil
}

// Get returns a task by ID
func (s *TasksStore) Get(ctx context.Context, id string) (*todo.Task, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// FindByName returns the first task whose name matches case-insensitively
func (s *TasksStore) FindByName(ctx context.Context, name string) (*todo.Task, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE name = ? COLLATE NOCASE ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(name),
	)
	return scanTask(row)
}

// MarkDoneByName marks the named task as done
func (s *TasksStore) MarkDoneByName(ctx context.Context, name string) (*todo.Task, error) {
	task, err := s.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.DB().ExecContext(ctx, `UPDATE tasks SET done = ? WHERE id = ?`, true, task.ID); err != nil {
		return nil, fmt.Errorf("failed to mark task done: %w", err)
	}
	task.Done = true

	logging.LogDatabaseOperation("UPDATE", "tasks", zap.String("task_id", task.ID), zap.Bool("done", true))
	return task, nil
}

// Toggle flips the done flag of a task
func (s *TasksStore) Toggle(ctx context.Context, id string) (*todo.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	task.Done = !task.Done
	if _, err := s.db.DB().ExecContext(ctx, `UPDATE tasks SET done = ? WHERE id = ?`, task.Done, task.ID); err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}

	logging.LogDatabaseOperation("UPDATE", "tasks", zap.String("task_id", task.ID), zap.Bool("done", task.Done))
	return task, nil
}

// Delete removes a task by ID and returns what was removed
func (s *TasksStore) Delete(ctx context.Context, id string) (*todo.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return task, s.deleteByID(ctx, task.ID)
}

// DeleteByName removes the named task and returns what was removed
func (s *TasksStore) DeleteByName(ctx context.Context, name string) (*todo.Task, error) {
	task, err := s.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return task, s.deleteByID(ctx, task.ID)
}

func (s *TasksStore) deleteByID(ctx context.Context, id string) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return todo.ErrTaskNotFound
	}

	logging.LogDatabaseOperation("DELETE", "tasks", zap.String("task_id", id))
	return nil
}

// ClearAll removes every task
func (s *TasksStore) ClearAll(ctx context.Context) (int64, error) {
	return s.clear(ctx, `DELETE FROM tasks`)
}

// ClearCompleted removes completed tasks
func (s *TasksStore) ClearCompleted(ctx context.Context) (int64, error) {
	return s.clear(ctx, `DELETE FROM tasks WHERE done = 1`)
}

func (s *TasksStore) clear(ctx context.Context, query string) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tasks: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	logging.LogDatabaseOperation("DELETE", "tasks", zap.Int64("affected_rows", removed))
	return removed, nil
}

// Update applies the non-nil fields of update
func (s *TasksStore) Update(ctx context.Context, update todo.TaskUpdate) (*todo.Task, error) {
	task, err := s.Get(ctx, update.ID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, todo.ErrEmptyTaskName
		}
		if existing, err := s.FindByName(ctx, name); err == nil && existing.ID != task.ID {
			return nil, todo.ErrDuplicateTask
		} else if err != nil && !errors.Is(err, todo.ErrTaskNotFound) {
			return nil, err
		}
		task.Name = name
	}
	if update.Priority != nil {
		if *update.Priority < todo.PriorityLow || *update.Priority > todo.PriorityHigh {
			return nil, fmt.Errorf("priority must be between %d and %d", todo.PriorityLow, todo.PriorityHigh)
		}
		task.Priority = *update.Priority
	}
	if update.Category != nil {
		category := strings.TrimSpace(*update.Category)
		if category == "" {
			category = todo.DefaultCategory
		}
		task.Category = category
	}
	switch {
	case update.ClearDue:
		task.DueDate = nil
	case update.DueDate != nil:
		task.DueDate = todo.NewTimestamp(update.DueDate.UTC())
	}

	_, err = s.db.DB().ExecContext(ctx,
		`UPDATE tasks SET name = ?, priority = ?, category = ?, due_date = ? WHERE id = ?`,
		task.Name, task.Priority, task.Category, nullTime(task.DueDate), task.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, todo.ErrDuplicateTask
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	logging.LogDatabaseOperation("UPDATE", "tasks", zap.String("task_id", task.ID))
	return task, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*todo.Task, error) {
	var task todo.Task
	var due sql.NullTime
	var created time.Time

	err := row.Scan(&task.ID, &task.Name, &task.Done, &task.Priority, &task.Category, &due, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, todo.ErrTaskNotFound
		}
		return nil, err
	}

	task.CreatedAt = todo.Timestamp{Time: created}
	if due.Valid {
		task.DueDate = todo.NewTimestamp(due.Time)
	}
	return &task, nil
}

func nullTime(ts *todo.Timestamp) interface{} {
	if ts == nil || ts.IsZero() {
		return nil
	}
	return ts.Time.UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
