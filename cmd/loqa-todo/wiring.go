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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-todo/internal/config"
	grpcsvc "github.com/loqalabs/loqa-todo/internal/grpc"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/messaging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/loqalabs/loqa-todo/internal/tts"
	"github.com/loqalabs/loqa-todo/internal/voice"
	"go.uber.org/zap"
)

// voiceStack is everything the orchestrator talks to
type voiceStack struct {
	backend *todo.Client
	engine  voice.Engine
	speaker voice.Speaker
	mic     *voice.ManualEngine
	nats    *messaging.NATSService
	bridge  *messaging.DeviceBridge
	speech  tts.TextToSpeech
}

func newVoiceStack(cfg *config.Config) (*voiceStack, error) {
	backend, err := todo.NewClient(cfg.Backend)
	if err != nil {
		return nil, err
	}
	stack := &voiceStack{backend: backend}

	switch cfg.Voice.Engine {
	case config.EngineNATS:
		if err := stack.connectDevice(cfg); err != nil {
			stack.Close()
			return nil, err
		}
	case config.EngineManual:
		stack.mic = voice.NewManualEngine()
		stack.engine = stack.mic
		stack.speaker = voice.LogSpeaker{}
	default:
		stack.engine = voice.NoEngine{}
		stack.speaker = voice.LogSpeaker{}
	}

	logging.Sugar.Infow("🎙️ Voice stack ready",
		"engine", cfg.Voice.Engine,
		"device", cfg.Voice.DeviceID,
		"backend", cfg.Backend.URL)
	return stack, nil
}

func (s *voiceStack) connectDevice(cfg *config.Config) error {
	var synth messaging.Synthesizer
	if cfg.TTS.Enabled {
		kokoro, err := tts.NewKokoroClient(cfg.TTS)
		if err != nil {
			return err
		}
		s.speech = kokoro
		synth = tts.NewClips(s.speech)
	}

	s.nats = messaging.NewNATSService(cfg.NATS)
	if err := s.nats.Connect(); err != nil {
		return err
	}

	bridge, err := messaging.NewDeviceBridge(s.nats, cfg.NATS.SubjectPrefix, cfg.Voice.DeviceID, synth)
	if err != nil {
		return err
	}
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("failed to start device bridge: %w", err)
	}

	s.bridge = bridge
	s.engine = bridge
	s.speaker = bridge
	return nil
}

// registerProbes adds the stack's dependencies to a health service
func (s *voiceStack) registerProbes(health *grpcsvc.HealthService, orch *voice.Orchestrator) {
	health.Register(grpcsvc.ServiceBackend, s.backend.Health)
	health.Register(grpcsvc.ServiceVoice, func(ctx context.Context) error {
		select {
		case <-orch.Done():
			return errors.New("voice orchestrator stopped")
		default:
			return nil
		}
	})
	if s.nats != nil {
		health.Register(grpcsvc.ServiceDevice, func(ctx context.Context) error {
			return s.nats.Ping()
		})
	}
	if s.speech != nil {
		health.Register(grpcsvc.ServiceTTS, s.speech.Ping)
	}
}

func (s *voiceStack) Close() {
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			logging.LogWarn("Device bridge did not close cleanly", zap.Error(err))
		}
	}
	if s.nats != nil {
		s.nats.Close()
	}
	if s.speech != nil {
		_ = s.speech.Close()
	}
	_ = s.backend.Close()
}

// logObserver reports orchestrator status lines through the logger
type logObserver struct {
	voice.NopObserver
}

func (logObserver) Status(message string, isError bool) {
	message = security.SanitizeLogInput(message)
	if isError {
		logging.LogWarn("Voice status", zap.String("message", message))
		return
	}
	logging.Sugar.Infow("💬 Voice status", "message", message)
}

func (logObserver) DialogChanged(dialog voice.Dialog) {
	if dialog.Open {
		logging.Sugar.Infow("❓ Confirmation requested",
			"message", security.SanitizeLogInput(dialog.Message))
	}
}
