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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"go.uber.org/zap"
)

// ErrVoiceEventNotFound is returned when no event has the requested UUID
var ErrVoiceEventNotFound = errors.New("voice event not found")

const voiceEventColumns = `uuid, request_id, device_id, session, timestamp,
	transcript, intent, entities, confidence,
	response_text, processing_time_ms, success, error_message`

// VoiceEventsStore handles database operations for voice events
type VoiceEventsStore struct {
	db *Database
}

// NewVoiceEventsStore creates a new voice events store
func NewVoiceEventsStore(db *Database) *VoiceEventsStore {
	return &VoiceEventsStore{db: db}
}

// Insert stores a new voice event in the database
func (s *VoiceEventsStore) Insert(event *events.VoiceEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid voice event: %w", err)
	}

	entitiesJSON, err := event.EntitiesJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize entities: %w", err)
	}

	query := `INSERT INTO voice_events (` + voiceEventColumns + `) VALUES (
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?
	)`

	_, err = s.db.DB().Exec(query,
		event.UUID, event.RequestID, event.DeviceID, event.Session, event.Timestamp.UTC(),
		event.Transcript, event.Intent, entitiesJSON, event.Confidence,
		event.ResponseText, event.ProcessingTime, event.Success, event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert voice event: %w", err)
	}

	logging.LogVoiceEvent(event, "📝 Stored voice event",
		zap.String("device_id", event.DeviceID),
		zap.String("intent", event.Intent),
	)
	return nil
}

// GetByUUID retrieves a voice event by its UUID
func (s *VoiceEventsStore) GetByUUID(uuid string) (*events.VoiceEvent, error) {
	row := s.db.DB().QueryRow(`SELECT `+voiceEventColumns+` FROM voice_events WHERE uuid = ?`, uuid)
	return s.scanVoiceEvent(row)
}

// List retrieves voice events with pagination and filtering
func (s *VoiceEventsStore) List(options ListOptions) ([]*events.VoiceEvent, error) {
	query, args := s.buildListQuery(options)

	rows, err := s.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query voice events: %w", err)
	}
	defer rows.Close()

	var eventsList []*events.VoiceEvent
	for rows.Next() {
		event, err := s.scanVoiceEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voice events: %w", err)
	}

	return eventsList, nil
}

// Count returns the total number of voice events matching the filter
func (s *VoiceEventsStore) Count(options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args := s.buildListQuery(options)

	var count int64
	err := s.db.DB().QueryRow("SELECT COUNT(*) FROM ("+query+") AS filtered", args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count voice events: %w", err)
	}

	return count, nil
}

// GetRecentByDevice retrieves the latest events for one device
func (s *VoiceEventsStore) GetRecentByDevice(deviceID string, limit int) ([]*events.VoiceEvent, error) {
	return s.List(ListOptions{DeviceID: deviceID, Limit: limit})
}

// Delete removes a voice event by UUID
func (s *VoiceEventsStore) Delete(uuid string) error {
	result, err := s.db.DB().Exec("DELETE FROM voice_events WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("failed to delete voice event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrVoiceEventNotFound
	}

	logging.LogDatabaseOperation("DELETE", "voice_events", zap.String("event_uuid", uuid))
	return nil
}

// PruneBefore deletes events older than cutoff and reports how many were removed
func (s *VoiceEventsStore) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.DB().Exec("DELETE FROM voice_events WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune voice events: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if removed > 0 {
		logging.LogDatabaseOperation("DELETE", "voice_events", zap.Int64("affected_rows", removed))
	}
	return removed, nil
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	DeviceID  string
	Intent    string
	Session   string
	Success   *bool // nil = all, true = success only, false = errors only
	StartTime *time.Time
	EndTime   *time.Time

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp", "confidence", "processing_time"
	SortOrder string // "ASC", "DESC"
}

var sortColumns = map[string]string{
	"timestamp":       "timestamp",
	"confidence":      "confidence",
	"processing_time": "processing_time_ms",
}

// buildListQuery constructs the SQL query based on ListOptions
func (s *VoiceEventsStore) buildListQuery(options ListOptions) (string, []interface{}) {
	query := `SELECT ` + voiceEventColumns + ` FROM voice_events WHERE 1=1`

	var args []interface{}

	if options.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, options.DeviceID)
	}

	if options.Intent != "" {
		query += " AND intent = ?"
		args = append(args, options.Intent)
	}

	if options.Session != "" {
		query += " AND session = ?"
		args = append(args, options.Session)
	}

	if options.Success != nil {
		query += " AND success = ?"
		args = append(args, *options.Success)
	}

	if options.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, options.StartTime.UTC())
	}

	if options.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, options.EndTime.UTC())
	}

	// Column and direction are whitelisted; they cannot be bound as parameters
	sortBy, ok := sortColumns[options.SortBy]
	if !ok {
		sortBy = "timestamp"
	}

	sortOrder := "DESC"
	if options.SortOrder == "ASC" || options.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args
}

// scanVoiceEvent scans a database row into a VoiceEvent struct
func (s *VoiceEventsStore) scanVoiceEvent(row rowScanner) (*events.VoiceEvent, error) {
	var event events.VoiceEvent
	var entitiesJSON string

	err := row.Scan(
		&event.UUID, &event.RequestID, &event.DeviceID, &event.Session, &event.Timestamp,
		&event.Transcript, &event.Intent, &entitiesJSON, &event.Confidence,
		&event.ResponseText, &event.ProcessingTime, &event.Success, &event.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVoiceEventNotFound
		}
		return nil, err
	}

	if err := event.SetEntitiesFromJSON(entitiesJSON); err != nil {
		return nil, fmt.Errorf("failed to parse entities JSON: %w", err)
	}

	return &event, nil
}
