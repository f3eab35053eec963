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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 5000)
	}
	if cfg.Server.GRPCPort != 50051 {
		t.Errorf("Server.GRPCPort = %d, want %d", cfg.Server.GRPCPort, 50051)
	}
	if cfg.Database.Path != "./data/tasks.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./data/tasks.db")
	}
	if cfg.Database.EventRetention != 720*time.Hour {
		t.Errorf("Database.EventRetention = %v, want %v", cfg.Database.EventRetention, 720*time.Hour)
	}
	if cfg.Backend.URL != "http://localhost:5000" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "http://localhost:5000")
	}

	if cfg.Voice.Engine != EngineNATS {
		t.Errorf("Voice.Engine = %q, want %q", cfg.Voice.Engine, EngineNATS)
	}
	if cfg.Voice.Locale != "en-US" {
		t.Errorf("Voice.Locale = %q, want %q", cfg.Voice.Locale, "en-US")
	}
	if cfg.Voice.Prompt != "Yes?" {
		t.Errorf("Voice.Prompt = %q, want %q", cfg.Voice.Prompt, "Yes?")
	}
	if len(cfg.Voice.WakePhrases) != len(DefaultWakePhrases) {
		t.Errorf("Voice.WakePhrases has %d entries, want %d", len(cfg.Voice.WakePhrases), len(DefaultWakePhrases))
	}
	if cfg.Voice.SettleDelay != 500*time.Millisecond {
		t.Errorf("Voice.SettleDelay = %v, want %v", cfg.Voice.SettleDelay, 500*time.Millisecond)
	}

	if cfg.TTS.Enabled {
		t.Error("TTS.Enabled = true, want false")
	}
	if cfg.TTS.Voice != "af_bella" {
		t.Errorf("TTS.Voice = %q, want %q", cfg.TTS.Voice, "af_bella")
	}
	if cfg.NATS.SubjectPrefix != "loqa.todo" {
		t.Errorf("NATS.SubjectPrefix = %q, want %q", cfg.NATS.SubjectPrefix, "loqa.todo")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "Server configuration",
			envVars: map[string]string{
				"LOQA_HOST":      "127.0.0.1",
				"LOQA_PORT":      "3000",
				"LOQA_GRPC_PORT": "9090",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "127.0.0.1" {
					t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
				}
				if cfg.Server.Port != 3000 {
					t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 3000)
				}
				if cfg.Server.GRPCPort != 9090 {
					t.Errorf("Server.GRPCPort = %d, want %d", cfg.Server.GRPCPort, 9090)
				}
			},
		},
		{
			name: "Wake phrases list",
			envVars: map[string]string{
				"VOICE_WAKE_PHRASES": " hey list , , ok list ",
			},
			validate: func(t *testing.T, cfg *Config) {
				want := []string{"hey list", "ok list"}
				if strings.Join(cfg.Voice.WakePhrases, "|") != strings.Join(want, "|") {
					t.Errorf("Voice.WakePhrases = %v, want %v", cfg.Voice.WakePhrases, want)
				}
			},
		},
		{
			name: "Voice engine is case-insensitive",
			envVars: map[string]string{
				"VOICE_ENGINE":    "Manual",
				"VOICE_DEVICE_ID": "kitchen",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Voice.Engine != EngineManual {
					t.Errorf("Voice.Engine = %q, want %q", cfg.Voice.Engine, EngineManual)
				}
				if cfg.Voice.DeviceID != "kitchen" {
					t.Errorf("Voice.DeviceID = %q, want %q", cfg.Voice.DeviceID, "kitchen")
				}
			},
		},
		{
			name: "Durations and malformed values",
			envVars: map[string]string{
				"VOICE_SETTLE_DELAY":   "1s",
				"VOICE_RESTART_DELAY":  "not-a-duration",
				"TODO_BACKEND_TIMEOUT": "3s",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Voice.SettleDelay != time.Second {
					t.Errorf("Voice.SettleDelay = %v, want %v", cfg.Voice.SettleDelay, time.Second)
				}
				if cfg.Voice.RestartDelay != 250*time.Millisecond {
					t.Errorf("Voice.RestartDelay = %v, want default", cfg.Voice.RestartDelay)
				}
				if cfg.Backend.Timeout != 3*time.Second {
					t.Errorf("Backend.Timeout = %v, want %v", cfg.Backend.Timeout, 3*time.Second)
				}
			},
		},
		{
			name: "TTS configuration",
			envVars: map[string]string{
				"KOKORO_TTS_ENABLED": "true",
				"KOKORO_TTS_SPEED":   "1.25",
				"KOKORO_TTS_FORMAT":  "wav",
			},
			validate: func(t *testing.T, cfg *Config) {
				if !cfg.TTS.Enabled {
					t.Error("TTS.Enabled = false, want true")
				}
				if cfg.TTS.Speed != 1.25 {
					t.Errorf("TTS.Speed = %f, want %f", cfg.TTS.Speed, 1.25)
				}
				if cfg.TTS.ResponseFormat != "wav" {
					t.Errorf("TTS.ResponseFormat = %q, want %q", cfg.TTS.ResponseFormat, "wav")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			for key, value := range tt.envVars {
				_ = os.Setenv(key, value)
			}
			defer clearEnvVars()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name          string
		envVars       map[string]string
		expectError   bool
		errorContains string
	}{
		{
			name:          "Invalid server port",
			envVars:       map[string]string{"LOQA_PORT": "0"},
			expectError:   true,
			errorContains: "invalid server port",
		},
		{
			name:          "Invalid gRPC port",
			envVars:       map[string]string{"LOQA_GRPC_PORT": "99999"},
			expectError:   true,
			errorContains: "invalid gRPC port",
		},
		{
			name:          "Unknown voice engine",
			envVars:       map[string]string{"VOICE_ENGINE": "whisper"},
			expectError:   true,
			errorContains: "unknown voice engine",
		},
		{
			name: "Enabled TTS with bad speed",
			envVars: map[string]string{
				"KOKORO_TTS_ENABLED": "true",
				"KOKORO_TTS_SPEED":   "-1",
			},
			expectError:   true,
			errorContains: "TTS speed must be positive",
		},
		{
			name: "Disabled TTS is not validated",
			envVars: map[string]string{
				"KOKORO_TTS_SPEED": "-1",
			},
			expectError: false,
		},
		{
			name:          "Missing phrases file",
			envVars:       map[string]string{"VOICE_PHRASES_FILE": "/nonexistent/phrases.yaml"},
			expectError:   true,
			errorContains: "failed to load phrases file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			for key, value := range tt.envVars {
				_ = os.Setenv(key, value)
			}
			defer clearEnvVars()

			_, err := Load()

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain %q, got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoad_PhrasesFile(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	path := filepath.Join(t.TempDir(), "phrases.yaml")
	content := `wake_phrases:
  - hey list
  - okay list
accept:
  - do it
prompt: "What now?"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write phrases file: %v", err)
	}
	_ = os.Setenv("VOICE_PHRASES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Voice.WakePhrases) != 2 || cfg.Voice.WakePhrases[0] != "hey list" {
		t.Errorf("Voice.WakePhrases = %v, want [hey list okay list]", cfg.Voice.WakePhrases)
	}
	if len(cfg.Voice.Accept) != 1 || cfg.Voice.Accept[0] != "do it" {
		t.Errorf("Voice.Accept = %v, want [do it]", cfg.Voice.Accept)
	}
	// Omitted lists keep their defaults
	if len(cfg.Voice.Decline) != len(DefaultDecline) {
		t.Errorf("Voice.Decline = %v, want defaults", cfg.Voice.Decline)
	}
	if cfg.Voice.Prompt != "What now?" {
		t.Errorf("Voice.Prompt = %q, want %q", cfg.Voice.Prompt, "What now?")
	}
}

func TestLoad_InvalidPhrasesFile(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	path := filepath.Join(t.TempDir(), "phrases.yaml")
	if err := os.WriteFile(path, []byte("wake_phrases: [unterminated"), 0o600); err != nil {
		t.Fatalf("failed to write phrases file: %v", err)
	}
	_ = os.Setenv("VOICE_PHRASES_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

// Helper function to clear environment variables used in tests
func clearEnvVars() {
	envVars := []string{
		"LOQA_HOST", "LOQA_PORT", "LOQA_GRPC_PORT",
		"LOQA_READ_TIMEOUT", "LOQA_WRITE_TIMEOUT", "DB_PATH", "VOICE_EVENT_RETENTION",
		"TODO_BACKEND_URL", "TODO_BACKEND_TIMEOUT",
		"VOICE_ENGINE", "VOICE_DEVICE_ID", "VOICE_LOCALE", "VOICE_WAKE_PHRASES",
		"VOICE_ACCEPT_WORDS", "VOICE_DECLINE_WORDS", "VOICE_PROMPT",
		"VOICE_SETTLE_DELAY", "VOICE_RESUME_DELAY", "VOICE_RESTART_DELAY", "VOICE_PHRASES_FILE",
		"KOKORO_TTS_ENABLED", "KOKORO_TTS_URL", "KOKORO_TTS_VOICE", "KOKORO_TTS_SPEED",
		"KOKORO_TTS_FORMAT", "KOKORO_TTS_NORMALIZE", "KOKORO_TTS_MAX_CONCURRENT", "KOKORO_TTS_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "NATS_MAX_RECONNECT", "NATS_RECONNECT_WAIT",
	}

	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}
