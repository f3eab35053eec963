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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/voice"
	"go.uber.org/zap"
)

const defaultSpeakTimeout = 30 * time.Second

// Synthesizer renders text to audio that is attached to speak requests
type Synthesizer interface {
	SynthesizeAudio(ctx context.Context, text string) (audio []byte, format string, err error)
}

var (
	_ voice.Engine  = (*DeviceBridge)(nil)
	_ voice.Speaker = (*DeviceBridge)(nil)
)

// DeviceBridge drives a remote voice device over the message bus. It is the
// recognition engine and the speaker for the orchestrator.
type DeviceBridge struct {
	transport    Transport
	subjects     Subjects
	synth        Synthesizer
	speakTimeout time.Duration

	mu       sync.Mutex
	captures map[string]voice.Sink
	pending  map[string]chan struct{}
	unsubs   []func() error
	closed   bool
}

// NewDeviceBridge creates a bridge for deviceID. synth may be nil.
func NewDeviceBridge(transport Transport, prefix, deviceID string, synth Synthesizer) (*DeviceBridge, error) {
	subjects, err := DeviceSubjects(prefix, deviceID)
	if err != nil {
		return nil, err
	}
	return &DeviceBridge{
		transport:    transport,
		subjects:     subjects,
		synth:        synth,
		speakTimeout: defaultSpeakTimeout,
		captures:     make(map[string]voice.Sink),
		pending:      make(map[string]chan struct{}),
	}, nil
}

// Subjects returns the subjects the bridge uses
func (b *DeviceBridge) Subjects() Subjects {
	return b.subjects
}

// SetSpeakTimeout bounds how long Speak waits for the device acknowledgement
func (b *DeviceBridge) SetSpeakTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speakTimeout = d
}

// Start subscribes to the device's outbound subjects
func (b *DeviceBridge) Start() error {
	handlers := map[string]Handler{
		b.subjects.Spoken:            b.handleSpoken,
		b.subjects.RecognitionResult: b.handleResult,
		b.subjects.RecognitionError:  b.handleError,
		b.subjects.RecognitionEnd:    b.handleEnd,
	}

	for subject, handler := range handlers {
		unsub, err := b.transport.Subscribe(subject, handler)
		if err != nil {
			b.unsubscribeAll()
			return err
		}
		b.mu.Lock()
		b.unsubs = append(b.unsubs, unsub)
		b.mu.Unlock()
	}

	logging.Sugar.Infow("🎙️ Device bridge started", "speak", b.subjects.Speak)
	return nil
}

// Close unsubscribes, ends open captures and releases waiting speakers
func (b *DeviceBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	captures := b.captures
	b.captures = make(map[string]voice.Sink)
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	for id, sink := range captures {
		sink.End(id)
	}
	return b.unsubscribeAll()
}

func (b *DeviceBridge) unsubscribeAll() error {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	var errs []error
	for _, unsub := range unsubs {
		if err := unsub(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Begin asks the device to open a capture
func (b *DeviceBridge) Begin(captureID string, opts voice.Options, sink voice.Sink) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrNotConnected
	}
	b.captures[captureID] = sink
	b.mu.Unlock()

	err := b.publish(b.subjects.RecognitionStart, RecognitionStart{
		Session:    captureID,
		Kind:       string(opts.Kind),
		Continuous: opts.Continuous,
		Locale:     opts.Locale,
	})
	if err != nil {
		b.mu.Lock()
		delete(b.captures, captureID)
		b.mu.Unlock()
		return fmt.Errorf("failed to start %s capture: %w", opts.Kind, err)
	}

	logging.LogRecognition(string(opts.Kind), "begin", zap.String("capture_id", captureID))
	return nil
}

// Abort asks the device to stop a capture. The device answers with an end
// message; when the request cannot be sent the capture is ended locally.
func (b *DeviceBridge) Abort(captureID string) {
	b.mu.Lock()
	_, ok := b.captures[captureID]
	b.mu.Unlock()
	if !ok {
		return
	}

	if err := b.publish(b.subjects.RecognitionStop, RecognitionEvent{Session: captureID}); err != nil {
		logging.LogWarn("Could not reach device to stop capture, ending locally",
			zap.String("session", captureID), zap.Error(err))
		if sink := b.take(captureID); sink != nil {
			sink.Error(captureID, voice.ErrorAborted)
			sink.End(captureID)
		}
	}
}

// Speak sends text to the device and waits until it has been played
func (b *DeviceBridge) Speak(ctx context.Context, text string) error {
	req := SpeakRequest{UtteranceID: uuid.NewString(), Text: text}

	if b.synth != nil {
		audio, format, err := b.synth.SynthesizeAudio(ctx, text)
		switch {
		case err == nil:
			req.Audio = audio
			req.Format = format
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logging.LogWarn("TTS synthesis failed, sending text only", zap.Error(err))
		}
	}

	done := make(chan struct{})
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrNotConnected
	}
	b.pending[req.UtteranceID] = done
	timeout := b.speakTimeout
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.UtteranceID)
		b.mu.Unlock()
	}()

	if err := b.publish(b.subjects.Speak, req); err != nil {
		return err
	}
	logging.LogSpeech("sent", zap.String("utterance_id", req.UtteranceID), zap.Int("audio_bytes", len(req.Audio)))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if err := b.publish(b.subjects.Cancel, UtteranceRef{UtteranceID: req.UtteranceID}); err != nil {
			logging.LogWarn("Failed to cancel utterance", zap.Error(err))
		}
		return ctx.Err()
	case <-timer.C:
		// A lost acknowledgement must not hold capture forever.
		logging.LogWarn("Device did not acknowledge utterance",
			zap.String("utterance_id", req.UtteranceID), zap.Duration("timeout", timeout))
		return nil
	}
}

func (b *DeviceBridge) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", subject, err)
	}
	return b.transport.Publish(subject, data)
}

func (b *DeviceBridge) take(captureID string) voice.Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	sink := b.captures[captureID]
	delete(b.captures, captureID)
	return sink
}

func (b *DeviceBridge) lookup(captureID string) voice.Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captures[captureID]
}

func decodeEvent(subject string, data []byte) (RecognitionEvent, bool) {
	var evt RecognitionEvent
	if err := json.Unmarshal(data, &evt); err != nil || evt.Session == "" {
		logging.LogWarn("Dropping malformed device message", zap.String("subject", subject), zap.Error(err))
		return evt, false
	}
	return evt, true
}

func (b *DeviceBridge) handleSpoken(subject string, data []byte) {
	var ref UtteranceRef
	if err := json.Unmarshal(data, &ref); err != nil {
		logging.LogWarn("Dropping malformed spoken message", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.pending[ref.UtteranceID]; ok {
		close(ch)
		delete(b.pending, ref.UtteranceID)
	}
}

func (b *DeviceBridge) handleResult(subject string, data []byte) {
	evt, ok := decodeEvent(subject, data)
	if !ok {
		return
	}
	if sink := b.lookup(evt.Session); sink != nil {
		sink.Result(evt.Session, evt.Transcript)
	}
}

func (b *DeviceBridge) handleError(subject string, data []byte) {
	evt, ok := decodeEvent(subject, data)
	if !ok {
		return
	}
	if sink := b.lookup(evt.Session); sink != nil {
		sink.Error(evt.Session, voice.ErrorCode(evt.Code))
	}
}

func (b *DeviceBridge) handleEnd(subject string, data []byte) {
	evt, ok := decodeEvent(subject, data)
	if !ok {
		return
	}
	if sink := b.take(evt.Session); sink != nil {
		sink.End(evt.Session)
	}
}
