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

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session kinds recorded on a voice event
const (
	SessionCommand = "command"
	SessionConfirm = "confirm"
	SessionText    = "text"
)

// VoiceEvent records one interpreted utterance and what the controller did with it
type VoiceEvent struct {
	// Core identification
	UUID      string    `json:"uuid" db:"uuid"`
	RequestID string    `json:"request_id" db:"request_id"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	Session   string    `json:"session" db:"session"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Interpretation
	Transcript string            `json:"transcript" db:"transcript"`
	Intent     string            `json:"intent" db:"intent"`
	Entities   map[string]string `json:"entities" db:"entities"`
	Confidence float64           `json:"confidence" db:"confidence"`

	// Outcome
	ResponseText   string `json:"response_text" db:"response_text"`
	ProcessingTime int64  `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool   `json:"success" db:"success"`
	ErrorMessage   string `json:"error_message,omitempty" db:"error_message"`
}

// NewVoiceEvent creates a new VoiceEvent with a generated UUID and the current timestamp
func NewVoiceEvent(deviceID, session, requestID string) *VoiceEvent {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &VoiceEvent{
		UUID:      uuid.NewString(),
		RequestID: requestID,
		DeviceID:  deviceID,
		Session:   session,
		Timestamp: time.Now(),
		Entities:  make(map[string]string),
		Success:   true,
	}
}

// GetUUID returns the event UUID
func (ve *VoiceEvent) GetUUID() string {
	return ve.UUID
}

// SetInterpretation records the transcript and the intent it mapped to
func (ve *VoiceEvent) SetInterpretation(transcript, intent string, entities map[string]string, confidence float64) {
	ve.Transcript = transcript
	ve.Intent = intent
	ve.Confidence = confidence
	if entities == nil {
		entities = make(map[string]string)
	}
	ve.Entities = entities
}

// SetResponse sets the spoken response and marks processing as complete
func (ve *VoiceEvent) SetResponse(responseText string) {
	ve.ResponseText = responseText
	ve.ProcessingTime = time.Since(ve.Timestamp).Milliseconds()
}

// SetError marks the event as failed
func (ve *VoiceEvent) SetError(err error) {
	ve.Success = false
	if err != nil {
		ve.ErrorMessage = err.Error()
	}
	ve.ProcessingTime = time.Since(ve.Timestamp).Milliseconds()
}

// EntitiesJSON returns entities as JSON string for database storage
func (ve *VoiceEvent) EntitiesJSON() (string, error) {
	if len(ve.Entities) == 0 {
		return "{}", nil
	}

	data, err := json.Marshal(ve.Entities)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entities: %w", err)
	}

	return string(data), nil
}

// SetEntitiesFromJSON parses JSON string and sets entities
func (ve *VoiceEvent) SetEntitiesFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "{}" {
		ve.Entities = make(map[string]string)
		return nil
	}

	var entities map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &entities); err != nil {
		return fmt.Errorf("failed to unmarshal entities JSON: %w", err)
	}

	ve.Entities = entities
	return nil
}

// IsValid performs basic validation on the voice event
func (ve *VoiceEvent) IsValid() error {
	if ve.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if _, err := uuid.Parse(ve.UUID); err != nil {
		return fmt.Errorf("UUID is malformed: %w", err)
	}

	if ve.DeviceID == "" {
		return fmt.Errorf("deviceID is required")
	}

	if ve.RequestID == "" {
		return fmt.Errorf("requestID is required")
	}

	if ve.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if ve.Confidence < 0 || ve.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}

	return nil
}

// String returns a human-readable representation of the voice event
func (ve *VoiceEvent) String() string {
	return fmt.Sprintf("VoiceEvent{UUID: %s, DeviceID: %s, Intent: %s, Transcript: %q, Success: %t}",
		ve.UUID, ve.DeviceID, ve.Intent, ve.Transcript, ve.Success)
}
