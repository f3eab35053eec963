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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"go.uber.org/zap"
)

// APIError is a non-success response from the backend
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return e.Message
}

// Unwrap maps well-known statuses onto the package sentinels so callers can use errors.Is
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrTaskNotFound
	case http.StatusConflict:
		return ErrDuplicateTask
	case http.StatusBadRequest:
		return ErrEmptyTaskName
	default:
		return nil
	}
}

// Client talks to the task REST backend
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a backend client
func NewClient(cfg config.BackendConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend URL cannot be empty")
	}

	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// ListTasks fetches tasks in the given order, optionally filtered by completion
func (c *Client) ListTasks(ctx context.Context, sort SortMode, filter DoneFilter) ([]Task, error) {
	query := url.Values{}
	if sort != "" {
		query.Set("sort", string(sort))
	}
	if filter != FilterAll {
		query.Set("done", string(filter))
	}

	endpoint := c.baseURL + "/tasks"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tasks request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var tasks []Task
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}

	return tasks, nil
}

// Add creates a task from free text; the backend extracts priority, category and due date
func (c *Client) Add(ctx context.Context, text string) (*Reply, error) {
	return c.post(ctx, "/add", map[string]string{"task": text})
}

// Toggle flips a task between done and pending
func (c *Client) Toggle(ctx context.Context, id string) (*Reply, error) {
	return c.post(ctx, "/toggle", map[string]string{"id": id})
}

// Delete removes a task by ID
func (c *Client) Delete(ctx context.Context, id string) (*Reply, error) {
	return c.post(ctx, "/delete", map[string]string{"id": id})
}

// DeleteByName removes the task whose name matches case-insensitively
func (c *Client) DeleteByName(ctx context.Context, name string) (*Reply, error) {
	return c.post(ctx, "/delete-by-name", map[string]string{"name": name})
}

// MarkByName marks the named task as done
func (c *Client) MarkByName(ctx context.Context, name string) (*Reply, error) {
	return c.post(ctx, "/mark-by-name", map[string]string{"name": name})
}

// ClearAll removes every task
func (c *Client) ClearAll(ctx context.Context) (*Reply, error) {
	return c.post(ctx, "/clear", nil)
}

// ClearCompleted removes completed tasks
func (c *Client) ClearCompleted(ctx context.Context) (*Reply, error) {
	return c.post(ctx, "/clear-completed", nil)
}

// Update edits a task's fields
func (c *Client) Update(ctx context.Context, update TaskUpdate) (*Reply, error) {
	return c.post(ctx, "/update", update)
}

// RecordVoiceEvent posts an interaction to the backend's voice event log
func (c *Client) RecordVoiceEvent(ctx context.Context, event *events.VoiceEvent) error {
	_, err := c.post(ctx, "/api/voice-events", event)
	return err
}

// Health checks that the backend is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*Reply, error) {
	payload := []byte("{}")
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		logging.LogError(err, "Backend request failed", zap.String("path", path))
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		logging.LogWarn("Backend rejected request",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("error", apiErr.Error()),
		)
		return nil, apiErr
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return &reply, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var reply Reply
	if err := json.Unmarshal(body, &reply); err == nil && reply.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: reply.Error}
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
