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

package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTaskNameLength mirrors the width of the tasks.name column
const MaxTaskNameLength = 200

var (
	// ErrInvalidDeviceID is returned when a device ID cannot be used as a NATS subject token
	ErrInvalidDeviceID = errors.New("invalid device ID")

	// ErrInvalidTaskName is returned when a task name is too long or carries control characters
	ErrInvalidTaskName = errors.New("invalid task name")

	// deviceIDPattern excludes subject separators and wildcards ('.', '*', '>')
	deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// SanitizeLogInput removes newline characters to prevent log injection attacks.
// Transcripts and task names are user-controlled and must pass through here before logging.
func SanitizeLogInput(input string) string {
	sanitized := strings.ReplaceAll(input, "\n", "")
	sanitized = strings.ReplaceAll(sanitized, "\r", "")
	return sanitized
}

// ValidateDeviceID ensures a device ID is a single NATS subject token
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" || len(deviceID) > 64 {
		return ErrInvalidDeviceID
	}

	if !deviceIDPattern.MatchString(deviceID) {
		return ErrInvalidDeviceID
	}

	return nil
}

// ValidateTaskName rejects names that would not round-trip through storage or speech
func ValidateTaskName(name string) error {
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > MaxTaskNameLength {
		return ErrInvalidTaskName
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrInvalidTaskName
		}
	}

	return nil
}
