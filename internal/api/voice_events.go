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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"github.com/loqalabs/loqa-todo/internal/storage"
	"go.uber.org/zap"
)

// VoiceEventsHandler handles HTTP requests for voice events
type VoiceEventsHandler struct {
	store *storage.VoiceEventsStore
}

// NewVoiceEventsHandler creates a new voice events handler
func NewVoiceEventsHandler(store *storage.VoiceEventsStore) *VoiceEventsHandler {
	return &VoiceEventsHandler{store: store}
}

// Register mounts the voice event routes on mux
func (h *VoiceEventsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/voice-events", h.HandleVoiceEvents)
	mux.HandleFunc("/api/voice-events/", h.HandleVoiceEventByID)
}

// ListVoiceEventsResponse represents the response for listing voice events
type ListVoiceEventsResponse struct {
	Events     []*events.VoiceEvent `json:"events"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// CreateVoiceEventRequest mirrors the VoiceEvent JSON posted by the voice controller
type CreateVoiceEventRequest struct {
	UUID           string            `json:"uuid"`
	RequestID      string            `json:"request_id"`
	DeviceID       string            `json:"device_id"`
	Session        string            `json:"session"`
	Timestamp      *time.Time        `json:"timestamp"`
	Transcript     string            `json:"transcript"`
	Intent         string            `json:"intent"`
	Entities       map[string]string `json:"entities"`
	Confidence     float64           `json:"confidence"`
	ResponseText   string            `json:"response_text"`
	ProcessingTime int64             `json:"processing_time_ms"`
	Success        *bool             `json:"success"`
	ErrorMessage   string            `json:"error_message"`
}

// HandleVoiceEvents handles GET /api/voice-events and POST /api/voice-events
func (h *VoiceEventsHandler) HandleVoiceEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVoiceEvents(w, r)
	case http.MethodPost:
		h.createVoiceEvent(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleVoiceEventByID handles GET /api/voice-events/{uuid}
func (h *VoiceEventsHandler) HandleVoiceEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/voice-events/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Event ID is required", http.StatusBadRequest)
		return
	}

	h.getVoiceEventByID(w, pathParts[0])
}

// listVoiceEvents handles GET /api/voice-events
func (h *VoiceEventsHandler) listVoiceEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseIntParam(query.Get("page"), 1)
	pageSize := parseIntParam(query.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}

	options := storage.ListOptions{
		DeviceID:  query.Get("device_id"),
		Intent:    query.Get("intent"),
		Session:   query.Get("session"),
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
		SortBy:    query.Get("sort_by"),
		SortOrder: strings.ToUpper(query.Get("sort_order")),
	}

	if successStr := query.Get("success"); successStr != "" {
		if success, err := strconv.ParseBool(successStr); err == nil {
			options.Success = &success
		}
	}

	if startTimeStr := query.Get("start_time"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			options.StartTime = &startTime
		}
	}
	if endTimeStr := query.Get("end_time"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			options.EndTime = &endTime
		}
	}

	total, err := h.store.Count(options)
	if err != nil {
		logging.LogError(err, "Failed to count voice events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	eventsList, err := h.store.List(options)
	if err != nil {
		logging.LogError(err, "Failed to list voice events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if eventsList == nil {
		eventsList = []*events.VoiceEvent{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	response := ListVoiceEventsResponse{
		Events:     eventsList,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}

	logging.Sugar.Debugw("Voice events API request",
		"endpoint", "list",
		"page", page,
		"page_size", pageSize,
		"total_results", total,
		"device_id", security.SanitizeLogInput(options.DeviceID),
		"intent", security.SanitizeLogInput(options.Intent),
	)

	WriteJSON(w, http.StatusOK, response)
}

// createVoiceEvent handles POST /api/voice-events
func (h *VoiceEventsHandler) createVoiceEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateVoiceEventRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.DeviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	if req.Session == "" {
		req.Session = events.SessionCommand
	}

	voiceEvent := events.NewVoiceEvent(req.DeviceID, req.Session, req.RequestID)
	if _, err := uuid.Parse(req.UUID); err == nil {
		voiceEvent.UUID = req.UUID
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		voiceEvent.Timestamp = *req.Timestamp
	}

	voiceEvent.SetInterpretation(req.Transcript, req.Intent, req.Entities, req.Confidence)
	voiceEvent.ResponseText = req.ResponseText
	voiceEvent.ProcessingTime = req.ProcessingTime
	if req.Success != nil {
		voiceEvent.Success = *req.Success
	}
	voiceEvent.ErrorMessage = req.ErrorMessage

	if err := h.store.Insert(voiceEvent); err != nil {
		logging.LogError(err, "Failed to create voice event",
			zap.String("device_id", security.SanitizeLogInput(req.DeviceID)),
		)
		if strings.Contains(err.Error(), "invalid voice event") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create voice event", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusCreated, voiceEvent)
}

// getVoiceEventByID handles GET /api/voice-events/{uuid}
func (h *VoiceEventsHandler) getVoiceEventByID(w http.ResponseWriter, id string) {
	event, err := h.store.GetByUUID(id)
	if err != nil {
		if errors.Is(err, storage.ErrVoiceEventNotFound) {
			http.Error(w, "Voice event not found", http.StatusNotFound)
			return
		}
		logging.LogError(err, "Failed to get voice event",
			zap.String("uuid", security.SanitizeLogInput(id)),
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, event)
}

// parseIntParam parses integer parameter with default value
func parseIntParam(param string, defaultValue int) int {
	if param == "" {
		return defaultValue
	}

	if value, err := strconv.Atoi(param); err == nil {
		return value
	}

	return defaultValue
}
