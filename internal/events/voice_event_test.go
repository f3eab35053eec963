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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVoiceEvent(t *testing.T) {
	event := NewVoiceEvent("kitchen", SessionCommand, "")

	_, err := uuid.Parse(event.UUID)
	require.NoError(t, err)
	assert.NotEmpty(t, event.RequestID)
	assert.NotEqual(t, event.UUID, event.RequestID)
	assert.Equal(t, "kitchen", event.DeviceID)
	assert.Equal(t, SessionCommand, event.Session)
	assert.True(t, event.Success)
	assert.NotNil(t, event.Entities)
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
	assert.Equal(t, event.UUID, event.GetUUID())
}

func TestVoiceEvent_Outcome(t *testing.T) {
	event := NewVoiceEvent("kitchen", SessionCommand, "req-1")
	event.SetInterpretation("add buy milk", "add_task", map[string]string{"name": "buy milk"}, 1)
	event.SetResponse("Task 'buy milk' added with low priority")

	assert.True(t, event.Success)
	assert.Equal(t, "add_task", event.Intent)
	assert.GreaterOrEqual(t, event.ProcessingTime, int64(0))

	event.SetError(errors.New("backend unreachable"))
	assert.False(t, event.Success)
	assert.Equal(t, "backend unreachable", event.ErrorMessage)
}

func TestVoiceEvent_EntitiesRoundTrip(t *testing.T) {
	event := NewVoiceEvent("kitchen", SessionCommand, "req-1")

	raw, err := event.EntitiesJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)

	event.Entities["sort"] = "priority"
	raw, err = event.EntitiesJSON()
	require.NoError(t, err)

	restored := &VoiceEvent{}
	require.NoError(t, restored.SetEntitiesFromJSON(raw))
	assert.Equal(t, "priority", restored.Entities["sort"])

	assert.Error(t, restored.SetEntitiesFromJSON("{not json"))
}

func TestVoiceEvent_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*VoiceEvent)
		wantErr string
	}{
		{name: "valid", mutate: func(*VoiceEvent) {}},
		{name: "missing uuid", mutate: func(e *VoiceEvent) { e.UUID = "" }, wantErr: "UUID is required"},
		{name: "malformed uuid", mutate: func(e *VoiceEvent) { e.UUID = "loqa-123" }, wantErr: "UUID is malformed"},
		{name: "missing device", mutate: func(e *VoiceEvent) { e.DeviceID = "" }, wantErr: "deviceID is required"},
		{name: "zero timestamp", mutate: func(e *VoiceEvent) { e.Timestamp = time.Time{} }, wantErr: "timestamp is required"},
		{name: "confidence out of range", mutate: func(e *VoiceEvent) { e.Confidence = 1.5 }, wantErr: "confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewVoiceEvent("kitchen", SessionCommand, "req-1")
			tt.mutate(event)

			err := event.IsValid()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}
