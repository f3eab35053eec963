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

package voice

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"go.uber.org/zap"
)

// Kind names a recognition session
type Kind string

const (
	KindWake    Kind = "wake"
	KindCommand Kind = "command"
	KindConfirm Kind = "confirm"
)

// ErrorCode is a recognizer error, using the Web Speech API vocabulary
type ErrorCode string

const (
	ErrorNoSpeech            ErrorCode = "no-speech"
	ErrorAborted             ErrorCode = "aborted"
	ErrorAudioCapture        ErrorCode = "audio-capture"
	ErrorNetwork             ErrorCode = "network"
	ErrorNotAllowed          ErrorCode = "not-allowed"
	ErrorServiceNotAllowed   ErrorCode = "service-not-allowed"
	ErrorLanguageUnsupported ErrorCode = "language-not-supported"
)

var (
	// ErrRecognitionUnavailable means the host has no recognizer; only text input works
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	// ErrCaptureBusy is returned by engines that are already capturing
	ErrCaptureBusy = errors.New("recognizer already capturing")
)

// Options configures one capture
type Options struct {
	Kind       Kind
	Continuous bool
	Locale     string
}

// Sink receives recognizer events for a capture. Engines call it from any
// goroutine and must deliver exactly one End per successful Begin.
type Sink interface {
	Result(captureID, transcript string)
	Error(captureID string, code ErrorCode)
	End(captureID string)
}

// Engine is the platform recognizer
type Engine interface {
	Begin(captureID string, opts Options, sink Sink) error
	Abort(captureID string)
}

// SessionHandlers are invoked by the session owner's executor
type SessionHandlers struct {
	OnResult func(transcript string)
	OnError  func(code ErrorCode)
	OnEnd    func()
}

// Session wraps one kind of capture. It is not safe for concurrent use;
// engine events are funnelled through deliver onto the owner's goroutine.
type Session struct {
	kind     Kind
	engine   Engine
	opts     Options
	handlers SessionHandlers
	deliver  func(func())

	captureID string
	running   bool
	stopping  bool
}

// NewSession creates a stopped session. deliver runs engine callbacks on the owner's goroutine.
func NewSession(kind Kind, continuous bool, locale string, engine Engine, handlers SessionHandlers, deliver func(func())) *Session {
	return &Session{
		kind:     kind,
		engine:   engine,
		opts:     Options{Kind: kind, Continuous: continuous, Locale: locale},
		handlers: handlers,
		deliver:  deliver,
	}
}

// Kind returns the session kind
func (s *Session) Kind() Kind {
	return s.kind
}

// Running reports whether a capture has started and its End has not yet been handled
func (s *Session) Running() bool {
	return s.running
}

// Start begins a capture. Failures are logged and reported as an error but never panic.
func (s *Session) Start() error {
	if s.running {
		logging.LogRecognition(string(s.kind), "start_skipped", zap.String("reason", "already running"))
		return ErrCaptureBusy
	}
	if s.engine == nil {
		return ErrRecognitionUnavailable
	}

	captureID := uuid.New().String()
	s.captureID = captureID
	s.running = true
	s.stopping = false

	if err := s.engine.Begin(captureID, s.opts, sessionSink{session: s}); err != nil {
		s.captureID = ""
		s.running = false
		logging.LogWarn("Recognition session failed to start",
			zap.String("session", string(s.kind)),
			zap.Error(err))
		return fmt.Errorf("failed to start %s session: %w", s.kind, err)
	}

	logging.LogRecognition(string(s.kind), "start", zap.String("capture_id", captureID))
	return nil
}

// Stop asks the engine to end the capture; completion arrives through OnEnd.
// Stopping a stopped or already stopping session does nothing.
func (s *Session) Stop() {
	if !s.running || s.stopping {
		return
	}
	s.stopping = true
	logging.LogRecognition(string(s.kind), "stop", zap.String("capture_id", s.captureID))
	s.engine.Abort(s.captureID)
}

func (s *Session) handleResult(captureID, transcript string) {
	if !s.current(captureID) {
		return
	}
	logging.LogRecognition(string(s.kind), "result",
		zap.String("capture_id", captureID),
		zap.String("transcript", security.SanitizeLogInput(transcript)))
	if s.stopping {
		return
	}
	if s.handlers.OnResult != nil {
		s.handlers.OnResult(transcript)
	}
}

func (s *Session) handleError(captureID string, code ErrorCode) {
	if !s.current(captureID) {
		return
	}
	logging.LogRecognition(string(s.kind), "error",
		zap.String("capture_id", captureID),
		zap.String("code", string(code)))
	if s.stopping {
		return
	}
	if s.handlers.OnError != nil {
		s.handlers.OnError(code)
	}
}

func (s *Session) handleEnd(captureID string) {
	if !s.current(captureID) {
		return
	}
	s.captureID = ""
	s.running = false
	s.stopping = false
	logging.LogRecognition(string(s.kind), "end", zap.String("capture_id", captureID))
	if s.handlers.OnEnd != nil {
		s.handlers.OnEnd()
	}
}

func (s *Session) current(captureID string) bool {
	return s.running && captureID != "" && captureID == s.captureID
}

type sessionSink struct {
	session *Session
}

func (k sessionSink) Result(captureID, transcript string) {
	k.session.deliver(func() { k.session.handleResult(captureID, transcript) })
}

func (k sessionSink) Error(captureID string, code ErrorCode) {
	k.session.deliver(func() { k.session.handleError(captureID, code) })
}

func (k sessionSink) End(captureID string) {
	k.session.deliver(func() { k.session.handleEnd(captureID) })
}

// NoEngine is the recognizer of a host without speech recognition
type NoEngine struct{}

func (NoEngine) Begin(string, Options, Sink) error { return ErrRecognitionUnavailable }
func (NoEngine) Abort(string)                      {}

// ManualEngine turns typed lines into recognition results for the active capture
type ManualEngine struct {
	mu        sync.Mutex
	captureID string
	opts      Options
	sink      Sink
}

// NewManualEngine creates an idle manual engine
func NewManualEngine() *ManualEngine {
	return &ManualEngine{}
}

func (m *ManualEngine) Begin(captureID string, opts Options, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.captureID != "" {
		return ErrCaptureBusy
	}
	m.captureID = captureID
	m.opts = opts
	m.sink = sink
	return nil
}

func (m *ManualEngine) Abort(captureID string) {
	m.mu.Lock()
	if m.captureID != captureID {
		m.mu.Unlock()
		return
	}
	sink := m.sink
	m.captureID = ""
	m.sink = nil
	m.mu.Unlock()

	sink.Error(captureID, ErrorAborted)
	sink.End(captureID)
}

// Active returns the kind of the capture in progress
func (m *ManualEngine) Active() (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Kind, m.captureID != ""
}

// Submit delivers text to the active capture. One-shot captures end after the result.
// It returns false when nothing is listening.
func (m *ManualEngine) Submit(text string) bool {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	captureID, sink, continuous := m.captureID, m.sink, m.opts.Continuous
	if captureID == "" {
		m.mu.Unlock()
		return false
	}
	if !continuous {
		m.captureID = ""
		m.sink = nil
	}
	m.mu.Unlock()

	if text == "" {
		sink.Error(captureID, ErrorNoSpeech)
	} else {
		sink.Result(captureID, text)
	}
	if !continuous {
		sink.End(captureID)
	}
	return true
}
