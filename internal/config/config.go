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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Recognition engine backends
const (
	EngineNATS   = "nats"
	EngineManual = "manual"
	EngineNone   = "none"
)

// Config holds all configuration for the Loqa to-do hub
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Backend  BackendConfig
	Voice    VoiceConfig
	TTS      TTSConfig
	Logging  LoggingConfig
	NATS     NATSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         int
	GRPCPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds task store configuration
type DatabaseConfig struct {
	Path           string
	EventRetention time.Duration // voice events older than this are pruned; zero keeps them
}

// BackendConfig describes the REST backend consumed by the voice controller
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// VoiceConfig holds voice orchestration settings
type VoiceConfig struct {
	Engine       string   // nats, manual or none
	DeviceID     string   // device the orchestrator is bridged to
	Locale       string   // BCP-47 language tag handed to the recognizer
	WakePhrases  []string // accepted wake phrase variants
	Accept       []string // confirmation accept vocabulary
	Decline      []string // confirmation decline vocabulary
	Prompt       string   // spoken after the wake phrase is heard
	SettleDelay  time.Duration
	ResumeDelay  time.Duration
	RestartDelay time.Duration
	PhrasesFile  string
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	Enabled        bool
	URL            string        // REST API URL for Kokoro-82M TTS service
	Voice          string        // Default voice to use (e.g., "af_bella")
	Speed          float32       // Speech speed (1.0 = normal)
	ResponseFormat string        // Audio format (mp3, wav, opus, flac)
	Normalize      bool          // Enable text normalization
	MaxConcurrent  int           // Maximum concurrent TTS requests
	Timeout        time.Duration // Request timeout
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// PhraseFile is the YAML document that overrides the built-in vocabularies
type PhraseFile struct {
	WakePhrases []string `yaml:"wake_phrases"`
	Accept      []string `yaml:"accept"`
	Decline     []string `yaml:"decline"`
	Prompt      string   `yaml:"prompt"`
}

// DefaultWakePhrases are the variants recognizers commonly produce for "hey to do"
var DefaultWakePhrases = []string{
	"hey to do",
	"hey todo",
	"hey to-do",
	"hey two do",
	"hey 2 do",
	"hey too do",
	"hey tudu",
	"hey today",
	"a to do",
	"hate to do",
}

// DefaultAccept and DefaultDecline are the confirmation vocabularies
var (
	DefaultAccept  = []string{"confirm", "yes", "yeah", "sure"}
	DefaultDecline = []string{"cancel", "no", "nope"}
)

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("LOQA_HOST", "0.0.0.0"),
			Port:         getEnvInt("LOQA_PORT", 5000),
			GRPCPort:     getEnvInt("LOQA_GRPC_PORT", 50051),
			ReadTimeout:  getEnvDuration("LOQA_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("LOQA_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Path:           getEnvString("DB_PATH", "./data/tasks.db"),
			EventRetention: getEnvDuration("VOICE_EVENT_RETENTION", 720*time.Hour),
		},
		Backend: BackendConfig{
			URL:     getEnvString("TODO_BACKEND_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("TODO_BACKEND_TIMEOUT", 10*time.Second),
		},
		Voice: VoiceConfig{
			Engine:       strings.ToLower(getEnvString("VOICE_ENGINE", EngineNATS)),
			DeviceID:     getEnvString("VOICE_DEVICE_ID", "default"),
			Locale:       getEnvString("VOICE_LOCALE", "en-US"),
			WakePhrases:  getEnvList("VOICE_WAKE_PHRASES", DefaultWakePhrases),
			Accept:       getEnvList("VOICE_ACCEPT_WORDS", DefaultAccept),
			Decline:      getEnvList("VOICE_DECLINE_WORDS", DefaultDecline),
			Prompt:       getEnvString("VOICE_PROMPT", "Yes?"),
			SettleDelay:  getEnvDuration("VOICE_SETTLE_DELAY", 500*time.Millisecond),
			ResumeDelay:  getEnvDuration("VOICE_RESUME_DELAY", 300*time.Millisecond),
			RestartDelay: getEnvDuration("VOICE_RESTART_DELAY", 250*time.Millisecond),
			PhrasesFile:  getEnvString("VOICE_PHRASES_FILE", ""),
		},
		TTS: TTSConfig{
			Enabled:        getEnvBool("KOKORO_TTS_ENABLED", false),
			URL:            getEnvString("KOKORO_TTS_URL", "http://localhost:8880/v1"),
			Voice:          getEnvString("KOKORO_TTS_VOICE", "af_bella"),
			Speed:          getEnvFloat32("KOKORO_TTS_SPEED", 1.0),
			ResponseFormat: getEnvString("KOKORO_TTS_FORMAT", "mp3"),
			Normalize:      getEnvBool("KOKORO_TTS_NORMALIZE", true),
			MaxConcurrent:  getEnvInt("KOKORO_TTS_MAX_CONCURRENT", 4),
			Timeout:        getEnvDuration("KOKORO_TTS_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
		},
		NATS: NATSConfig{
			URL:           getEnvString("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnvString("NATS_SUBJECT_PREFIX", "loqa.todo"),
			MaxReconnect:  getEnvInt("NATS_MAX_RECONNECT", 10),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
	}

	if config.Voice.PhrasesFile != "" {
		if err := config.Voice.applyPhraseFile(config.Voice.PhrasesFile); err != nil {
			return nil, fmt.Errorf("failed to load phrases file: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyPhraseFile overrides the vocabularies with the non-empty lists of a YAML file
func (v *VoiceConfig) applyPhraseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var phrases PhraseFile
	if err := yaml.Unmarshal(data, &phrases); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if len(phrases.WakePhrases) > 0 {
		v.WakePhrases = phrases.WakePhrases
	}
	if len(phrases.Accept) > 0 {
		v.Accept = phrases.Accept
	}
	if len(phrases.Decline) > 0 {
		v.Decline = phrases.Decline
	}
	if phrases.Prompt != "" {
		v.Prompt = phrases.Prompt
	}
	return nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path must be provided")
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend URL must be provided")
	}

	switch c.Voice.Engine {
	case EngineNATS, EngineManual, EngineNone:
	default:
		return fmt.Errorf("unknown voice engine: %q", c.Voice.Engine)
	}

	if len(c.Voice.WakePhrases) == 0 {
		return fmt.Errorf("at least one wake phrase must be configured")
	}

	if len(c.Voice.Accept) == 0 || len(c.Voice.Decline) == 0 {
		return fmt.Errorf("confirmation vocabularies must not be empty")
	}

	if c.TTS.Enabled {
		if c.TTS.URL == "" {
			return fmt.Errorf("TTS URL must be provided")
		}
		if c.TTS.MaxConcurrent <= 0 {
			return fmt.Errorf("TTS max concurrent must be positive: %d", c.TTS.MaxConcurrent)
		}
		if c.TTS.Speed <= 0 {
			return fmt.Errorf("TTS speed must be positive: %f", c.TTS.Speed)
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable; blank entries are dropped
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return items
}
