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

package todo

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	// ErrTaskNotFound is returned when no task matches an ID or name
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when adding a task whose name already exists
	ErrDuplicateTask = errors.New("task already exists")

	// ErrEmptyTaskName is returned when a request carries no usable task name or ID
	ErrEmptyTaskName = errors.New("no task name provided")
)

// SortMode selects the ordering of GET /tasks
type SortMode string

const (
	SortCreated  SortMode = "created"
	SortPriority SortMode = "priority"
	SortCategory SortMode = "category"
	SortDue      SortMode = "due"
)

// ParseSortMode maps a query value to a SortMode; unknown values sort by creation
func ParseSortMode(value string) SortMode {
	switch SortMode(strings.ToLower(strings.TrimSpace(value))) {
	case SortPriority:
		return SortPriority
	case SortCategory:
		return SortCategory
	case SortDue:
		return SortDue
	default:
		return SortCreated
	}
}

// DoneFilter restricts GET /tasks to pending or completed tasks
type DoneFilter string

const (
	FilterAll       DoneFilter = ""
	FilterPending   DoneFilter = "false"
	FilterCompleted DoneFilter = "true"
)

// Priority levels
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// PriorityWord returns the spoken form of a priority level
func PriorityWord(priority int) string {
	switch priority {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return ""
	}
}

// DefaultCategory is assigned when an add command names no category
const DefaultCategory = "general"

// Task is a single to-do entry as exchanged over the REST surface
type Task struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Done      bool       `json:"done"`
	Priority  int        `json:"priority"`
	Category  string     `json:"category"`
	DueDate   *Timestamp `json:"due_date"`
	CreatedAt Timestamp  `json:"created_at"`
}

// TaskUpdate is the body of POST /update; nil fields are left untouched
type TaskUpdate struct {
	ID       string     `json:"id"`
	Name     *string    `json:"name,omitempty"`
	Priority *int       `json:"priority,omitempty"`
	Category *string    `json:"category,omitempty"`
	DueDate  *Timestamp `json:"due_date,omitempty"`
	ClearDue bool       `json:"clear_due,omitempty"`
}

// Reply is the body of every POST response
type Reply struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Task    *Task  `json:"task,omitempty"`
}

// Names returns the task names in order
func Names(tasks []Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

// Timestamp is a time that accepts any common date layout on decode
// (the backend may emit ISO-8601 without a zone) and encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t; a zero time yields nil
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}

	raw := strings.Trim(string(data), `"`)
	parsed, err := dateparse.ParseIn(raw, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}
