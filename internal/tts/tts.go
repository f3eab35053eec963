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

package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// maxAudioBytes caps buffered audio attached to a device message
const maxAudioBytes = 4 << 20

// ErrAudioTooLarge is returned when synthesized audio exceeds the message limit
var ErrAudioTooLarge = errors.New("synthesized audio too large")

// Options overrides the configured synthesis settings for one request
type Options struct {
	Voice          string  // Voice to use (e.g., "af_bella")
	Speed          float32 // Speech speed (1.0 = normal)
	ResponseFormat string  // Audio format (mp3, wav, opus, flac)
	Normalize      bool    // Enable text normalization
}

// Result holds the result of text-to-speech synthesis
type Result struct {
	Audio       io.ReadCloser // Audio stream, closed by the caller
	ContentType string        // MIME type of the audio
	Format      string        // Requested response format
	Length      int64         // Audio length in bytes (-1 if unknown)
}

// TextToSpeech defines the interface for text-to-speech synthesis services
type TextToSpeech interface {
	// Synthesize converts text to speech audio
	Synthesize(ctx context.Context, text string, options *Options) (*Result, error)

	// Voices returns the list of available voices
	Voices(ctx context.Context) ([]string, error)

	// Ping checks that the service answers
	Ping(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// Clips buffers whole utterances from a synthesis service, for transports
// that ship audio inside a single message
type Clips struct {
	service TextToSpeech
	limit   int
}

// NewClips wraps service with the default clip size limit
func NewClips(service TextToSpeech) *Clips {
	return &Clips{service: service, limit: maxAudioBytes}
}

// SynthesizeAudio renders text with the configured voice and buffers the audio
func (c *Clips) SynthesizeAudio(ctx context.Context, text string) ([]byte, string, error) {
	result, err := c.service.Synthesize(ctx, text, nil)
	if err != nil {
		return nil, "", err
	}
	defer result.Audio.Close()

	audio, err := io.ReadAll(io.LimitReader(result.Audio, int64(c.limit)+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read TTS audio: %w", err)
	}
	if len(audio) > c.limit {
		return nil, "", ErrAudioTooLarge
	}
	return audio, result.Format, nil
}
