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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"github.com/loqalabs/loqa-todo/internal/taskparse"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies on the task routes
const maxBodyBytes = 64 * 1024

// TaskStore is the persistence the task routes need
type TaskStore interface {
	List(ctx context.Context, sort todo.SortMode, filter todo.DoneFilter) ([]todo.Task, error)
	Add(ctx context.Context, parsed taskparse.Parsed) (*todo.Task, error)
	MarkDoneByName(ctx context.Context, name string) (*todo.Task, error)
	DeleteByName(ctx context.Context, name string) (*todo.Task, error)
	Toggle(ctx context.Context, id string) (*todo.Task, error)
	Delete(ctx context.Context, id string) (*todo.Task, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	Update(ctx context.Context, update todo.TaskUpdate) (*todo.Task, error)
}

// TasksHandler serves the task REST surface
type TasksHandler struct {
	store TaskStore
	now   func() time.Time
}

// NewTasksHandler creates a new tasks handler
func NewTasksHandler(store TaskStore) *TasksHandler {
	return &TasksHandler{store: store, now: time.Now}
}

// Register mounts the task routes on mux
func (h *TasksHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/tasks", h.HandleList)
	mux.HandleFunc("/add", h.HandleAdd)
	mux.HandleFunc("/toggle", h.HandleToggle)
	mux.HandleFunc("/delete", h.HandleDelete)
	mux.HandleFunc("/delete-by-name", h.HandleDeleteByName)
	mux.HandleFunc("/mark-by-name", h.HandleMarkByName)
	mux.HandleFunc("/clear", h.HandleClearAll)
	mux.HandleFunc("/clear-completed", h.HandleClearCompleted)
	mux.HandleFunc("/update", h.HandleUpdate)
}

type nameRequest struct {
	Name string `json:"name"`
}

type idRequest struct {
	ID string `json:"id"`
}

type addRequest struct {
	Task string `json:"task"`
}

// HandleList handles GET /tasks?sort=&done=
func (h *TasksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	filter := todo.FilterAll
	switch strings.ToLower(query.Get("done")) {
	case "true":
		filter = todo.FilterCompleted
	case "false":
		filter = todo.FilterPending
	}

	tasks, err := h.store.List(r.Context(), todo.ParseSortMode(query.Get("sort")), filter)
	if err != nil {
		logging.LogError(err, "Failed to list tasks")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, tasks)
}

// HandleAdd handles POST /add {task}
func (h *TasksHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodePost(w, r, &req) {
		return
	}

	text := strings.TrimSpace(req.Task)
	if text == "" {
		writeError(w, http.StatusBadRequest, "No task name provided")
		return
	}

	parsed := taskparse.Parse(text, h.now())
	if parsed.Name == "" {
		writeError(w, http.StatusBadRequest, "Empty task name after parsing")
		return
	}
	if err := security.ValidateTaskName(parsed.Name); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task name")
		return
	}

	task, err := h.store.Add(r.Context(), parsed)
	if err != nil {
		h.writeStoreError(w, err, parsed.Name)
		return
	}

	parsed.Name = task.Name
	logging.Sugar.Infow("➕ Task added",
		"task_id", task.ID,
		"name", security.SanitizeLogInput(task.Name),
		"priority", task.Priority,
		"category", security.SanitizeLogInput(task.Category),
	)
	WriteJSON(w, http.StatusCreated, todo.Reply{Message: parsed.Describe(), Task: task})
}

// HandleMarkByName handles POST /mark-by-name {name}
func (h *TasksHandler) HandleMarkByName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodePost(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "No task name provided")
		return
	}

	task, err := h.store.MarkDoneByName(r.Context(), name)
	if err != nil {
		h.writeStoreError(w, err, name)
		return
	}
	WriteJSON(w, http.StatusOK, todo.Reply{Message: fmt.Sprintf("Marked %s as done", task.Name), Task: task})
}

// HandleDeleteByName handles POST /delete-by-name {name}
func (h *TasksHandler) HandleDeleteByName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodePost(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "No task name provided")
		return
	}

	task, err := h.store.DeleteByName(r.Context(), name)
	if err != nil {
		h.writeStoreError(w, err, name)
		return
	}
	WriteJSON(w, http.StatusOK, todo.Reply{Message: fmt.Sprintf("Deleted %s", task.Name)})
}

// HandleToggle handles POST /toggle {id}
func (h *TasksHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "No task id provided")
		return
	}

	task, err := h.store.Toggle(r.Context(), req.ID)
	if err != nil {
		h.writeStoreError(w, err, "")
		return
	}

	state := "undone"
	if task.Done {
		state = "done"
	}
	WriteJSON(w, http.StatusOK, todo.Reply{Message: fmt.Sprintf("Marked %s as %s", task.Name, state), Task: task})
}

// HandleDelete handles POST /delete {id}
func (h *TasksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "No task id provided")
		return
	}

	task, err := h.store.Delete(r.Context(), req.ID)
	if err != nil {
		h.writeStoreError(w, err, "")
		return
	}
	WriteJSON(w, http.StatusOK, todo.Reply{Message: fmt.Sprintf("Deleted %s", task.Name)})
}

// HandleClearAll handles POST /clear
func (h *TasksHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	removed, err := h.store.ClearAll(r.Context())
	if err != nil {
		logging.LogError(err, "Failed to clear tasks")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logging.Sugar.Infow("🧹 All tasks cleared", "removed", removed)
	WriteJSON(w, http.StatusOK, todo.Reply{Message: "All tasks cleared"})
}

// HandleClearCompleted handles POST /clear-completed
func (h *TasksHandler) HandleClearCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	removed, err := h.store.ClearCompleted(r.Context())
	if err != nil {
		logging.LogError(err, "Failed to clear completed tasks")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logging.Sugar.Infow("🧹 Completed tasks cleared", "removed", removed)
	WriteJSON(w, http.StatusOK, todo.Reply{Message: "Completed tasks cleared"})
}

// HandleUpdate handles POST /update {id, name?, priority?, category?, due_date?}
func (h *TasksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req todo.TaskUpdate
	if !decodePost(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "No task id provided")
		return
	}
	if req.Name != nil {
		if err := security.ValidateTaskName(*req.Name); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid task name")
			return
		}
	}

	task, err := h.store.Update(r.Context(), req)
	if err != nil {
		h.writeStoreError(w, err, "")
		return
	}
	WriteJSON(w, http.StatusOK, todo.Reply{Message: fmt.Sprintf("Updated %s", task.Name), Task: task})
}

// writeStoreError maps store sentinels onto the documented statuses
func (h *TasksHandler) writeStoreError(w http.ResponseWriter, err error, name string) {
	switch {
	case errors.Is(err, todo.ErrTaskNotFound):
		if name != "" {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Task '%s' not found", name))
			return
		}
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, todo.ErrDuplicateTask):
		writeError(w, http.StatusConflict, "Task already exists")
	case errors.Is(err, todo.ErrEmptyTaskName):
		writeError(w, http.StatusBadRequest, "No task name provided")
	default:
		logging.LogError(err, "Task store operation failed", zap.String("name", security.SanitizeLogInput(name)))
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// decodePost enforces POST and decodes an optional JSON body into dst
func decodePost(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	defer func() { _ = r.Body.Close() }()

	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// WriteJSON encodes data as the JSON response body with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Sugar.Errorw("Failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, todo.Reply{Error: message})
}
