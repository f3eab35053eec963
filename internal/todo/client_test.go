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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response interface{}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if response != nil {
		_ = json.NewEncoder(w).Encode(response)
	}
}

func (f *fakeBackend) last(t *testing.T) recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, backend http.Handler) *Client {
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	client, err := NewClient(config.BackendConfig{URL: server.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(config.BackendConfig{})
	assert.Error(t, err)
}

func TestClient_PostRoutes(t *testing.T) {
	tests := []struct {
		name     string
		call     func(ctx context.Context, c *Client) (*Reply, error)
		wantPath string
		wantBody map[string]interface{}
	}{
		{
			name:     "add",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.Add(ctx, "buy milk") },
			wantPath: "/add",
			wantBody: map[string]interface{}{"task": "buy milk"},
		},
		{
			name:     "mark by name",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.MarkByName(ctx, "buy milk") },
			wantPath: "/mark-by-name",
			wantBody: map[string]interface{}{"name": "buy milk"},
		},
		{
			name:     "delete by name",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.DeleteByName(ctx, "buy milk") },
			wantPath: "/delete-by-name",
			wantBody: map[string]interface{}{"name": "buy milk"},
		},
		{
			name:     "toggle",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.Toggle(ctx, "id-1") },
			wantPath: "/toggle",
			wantBody: map[string]interface{}{"id": "id-1"},
		},
		{
			name:     "delete",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.Delete(ctx, "id-1") },
			wantPath: "/delete",
			wantBody: map[string]interface{}{"id": "id-1"},
		},
		{
			name:     "clear",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.ClearAll(ctx) },
			wantPath: "/clear",
			wantBody: map[string]interface{}{},
		},
		{
			name:     "clear completed",
			call:     func(ctx context.Context, c *Client) (*Reply, error) { return c.ClearCompleted(ctx) },
			wantPath: "/clear-completed",
			wantBody: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{response: Reply{Message: "ok"}}
			client := newTestClient(t, backend)

			reply, err := tt.call(context.Background(), client)
			require.NoError(t, err)
			assert.Equal(t, "ok", reply.Message)

			req := backend.last(t)
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, tt.wantPath, req.Path)
			assert.Equal(t, tt.wantBody, req.Body)
		})
	}
}

func TestClient_Update(t *testing.T) {
	backend := &fakeBackend{response: Reply{Message: "Task updated"}}
	client := newTestClient(t, backend)

	name := "buy oat milk"
	priority := PriorityHigh
	_, err := client.Update(context.Background(), TaskUpdate{ID: "id-1", Name: &name, Priority: &priority})
	require.NoError(t, err)

	req := backend.last(t)
	assert.Equal(t, "/update", req.Path)
	assert.Equal(t, "id-1", req.Body["id"])
	assert.Equal(t, "buy oat milk", req.Body["name"])
	assert.Equal(t, float64(PriorityHigh), req.Body["priority"])
	assert.NotContains(t, req.Body, "category")
}

func TestClient_ListTasks(t *testing.T) {
	backend := &fakeBackend{response: []map[string]interface{}{
		{
			"id":         "a",
			"name":       "buy milk",
			"done":       false,
			"priority":   3,
			"category":   "shopping",
			"due_date":   "2025-03-04T20:00:00",
			"created_at": "2025-03-01T09:30:00.123456",
		},
		{
			"id":         "b",
			"name":       "call mom",
			"done":       true,
			"priority":   1,
			"category":   "general",
			"due_date":   nil,
			"created_at": "2025-03-02T10:00:00Z",
		},
	}}
	client := newTestClient(t, backend)

	tasks, err := client.ListTasks(context.Background(), SortPriority, FilterAll)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "buy milk", tasks[0].Name)
	require.NotNil(t, tasks[0].DueDate)
	assert.Equal(t, 20, tasks[0].DueDate.Hour())
	assert.Nil(t, tasks[1].DueDate)
	assert.Equal(t, []string{"buy milk", "call mom"}, Names(tasks))

	req := backend.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "sort=priority", req.Query)
}

func TestClient_ListTasksFilterAndEmpty(t *testing.T) {
	backend := &fakeBackend{response: []Task{}}
	client := newTestClient(t, backend)

	tasks, err := client.ListTasks(context.Background(), SortCreated, FilterPending)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
	assert.Equal(t, "done=false&sort=created", backend.last(t).Query)
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response interface{}
		sentinel error
		message  string
	}{
		{"not found", http.StatusNotFound, Reply{Error: "Task 'milk' not found"}, ErrTaskNotFound, "Task 'milk' not found"},
		{"duplicate", http.StatusConflict, Reply{Error: "Task already exists"}, ErrDuplicateTask, "Task already exists"},
		{"empty", http.StatusBadRequest, Reply{Error: "No task name provided"}, ErrEmptyTaskName, "No task name provided"},
		{"server error without body", http.StatusInternalServerError, nil, nil, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{status: tt.status, response: tt.response}
			client := newTestClient(t, backend)

			_, err := client.MarkByName(context.Background(), "milk")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(config.BackendConfig{URL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Add(context.Background(), "buy milk")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))

	assert.Error(t, client.Health(context.Background()))
}

func TestClient_RecordVoiceEvent(t *testing.T) {
	backend := &fakeBackend{status: http.StatusCreated, response: map[string]string{"uuid": "x"}}
	client := newTestClient(t, backend)

	event := events.NewVoiceEvent("kitchen", events.SessionCommand, "")
	event.SetInterpretation("add buy milk", "add_task", nil, 1)
	require.NoError(t, client.RecordVoiceEvent(context.Background(), event))

	req := backend.last(t)
	assert.Equal(t, "/api/voice-events", req.Path)
	assert.Equal(t, event.UUID, req.Body["uuid"])
	assert.Equal(t, "add buy milk", req.Body["transcript"])
}

func TestParseSortMode(t *testing.T) {
	assert.Equal(t, SortPriority, ParseSortMode("Priority"))
	assert.Equal(t, SortDue, ParseSortMode("due"))
	assert.Equal(t, SortCategory, ParseSortMode(" category "))
	assert.Equal(t, SortCreated, ParseSortMode(""))
	assert.Equal(t, SortCreated, ParseSortMode("alphabetical"))
}

func TestTimestamp_JSON(t *testing.T) {
	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","name":"x","due_date":null,"created_at":"2025-01-02T03:04:05Z"}`), &task))
	assert.Nil(t, task.DueDate)
	assert.Equal(t, 2025, task.CreatedAt.Year())

	data, err := json.Marshal(Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-02T03:04:05Z"`, string(data))

	var bad Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"not a date at all"`), &bad))
}
