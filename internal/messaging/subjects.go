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

package messaging

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-todo/internal/security"
)

// Subjects are the NATS subjects used to talk to one voice device
type Subjects struct {
	Speak             string // hub -> device: utterance to play
	Cancel            string // hub -> device: stop an utterance
	Spoken            string // device -> hub: utterance finished
	RecognitionStart  string // hub -> device: begin a capture
	RecognitionStop   string // hub -> device: abort a capture
	RecognitionResult string // device -> hub: final transcript
	RecognitionEnd    string // device -> hub: capture closed
	RecognitionError  string // device -> hub: recognizer error
}

// DeviceSubjects builds the subject set for deviceID under prefix
func DeviceSubjects(prefix, deviceID string) (Subjects, error) {
	if err := security.ValidateDeviceID(deviceID); err != nil {
		return Subjects{}, fmt.Errorf("device %q: %w", security.SanitizeLogInput(deviceID), err)
	}

	base := strings.TrimSuffix(prefix, ".")
	if base == "" {
		base = "loqa.todo"
	}
	base = base + ".device." + deviceID

	return Subjects{
		Speak:             base + ".speak",
		Cancel:            base + ".cancel",
		Spoken:            base + ".spoken",
		RecognitionStart:  base + ".recognition.start",
		RecognitionStop:   base + ".recognition.stop",
		RecognitionResult: base + ".recognition.result",
		RecognitionEnd:    base + ".recognition.end",
		RecognitionError:  base + ".recognition.error",
	}, nil
}

// SpeakRequest asks the device to play an utterance. Audio is attached when
// the hub synthesized it; otherwise the device renders Text itself.
type SpeakRequest struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	Audio       []byte `json:"audio,omitempty"`
	Format      string `json:"format,omitempty"`
}

// UtteranceRef names an utterance in cancel and spoken messages
type UtteranceRef struct {
	UtteranceID string `json:"utterance_id"`
}

// RecognitionStart opens a capture on the device
type RecognitionStart struct {
	Session    string `json:"session"`
	Kind       string `json:"kind"`
	Continuous bool   `json:"continuous"`
	Locale     string `json:"locale,omitempty"`
}

// RecognitionEvent is sent by the device for results, errors and end of capture
type RecognitionEvent struct {
	Session    string `json:"session"`
	Transcript string `json:"transcript,omitempty"`
	Code       string `json:"code,omitempty"`
}
