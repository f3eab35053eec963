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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"go.uber.org/zap"
)

const (
	voicesCacheTTL  = time.Hour
	queueWait       = 5 * time.Second
	defaultTimeout  = 10 * time.Second
	defaultParallel = 4
)

var (
	// ErrEmptyText is returned when asked to synthesize nothing
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrQueueFull is returned when every synthesis slot stays busy
	ErrQueueFull = errors.New("TTS synthesis queue full")
)

// KokoroRequest represents a request to the Kokoro TTS API
type KokoroRequest struct {
	Model   string                 `json:"model"`
	Input   string                 `json:"input"`
	Voice   string                 `json:"voice"`
	Format  string                 `json:"response_format"`
	Speed   float32                `json:"speed,omitempty"`
	Options map[string]interface{} `json:"normalization_options,omitempty"`
}

// KokoroVoicesResponse represents the response from the voices endpoint
type KokoroVoicesResponse struct {
	Voices []string `json:"voices"`
}

var _ TextToSpeech = (*KokoroClient)(nil)

// KokoroClient talks to a Kokoro-82M server through its OpenAI-compatible API
type KokoroClient struct {
	baseURL         string
	client          *http.Client
	config          config.TTSConfig
	semaphore       chan struct{}
	mu              sync.RWMutex
	cachedVoices    []string
	voicesCacheTime time.Time
}

// NewKokoroClient creates a Kokoro client. It does not contact the server;
// use Ping to check availability.
func NewKokoroClient(cfg config.TTSConfig) (*KokoroClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Kokoro TTS URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultParallel
	}

	logging.Sugar.Infow("🔊 Kokoro TTS client initialized",
		"url", cfg.URL,
		"voice", cfg.Voice,
		"max_concurrent", cfg.MaxConcurrent,
	)

	return &KokoroClient{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		config:    cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Synthesize converts text to speech using Kokoro-82M
func (k *KokoroClient) Synthesize(ctx context.Context, text string, options *Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	select {
	case k.semaphore <- struct{}{}:
		defer func() { <-k.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(queueWait):
		return nil, ErrQueueFull
	}

	startTime := time.Now()
	request := k.buildRequest(text, options)

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	logging.LogTTSOperation("synthesis_start",
		zap.String("voice", request.Voice),
		zap.Int("text_length", len(text)),
		zap.String("format", request.Format),
		zap.Float32("speed", request.Speed),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/audio/speech", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	resp, err := k.client.Do(req)
	if err != nil {
		logging.LogError(err, "Kokoro TTS HTTP request failed",
			zap.String("voice", request.Voice),
			zap.Int("text_length", len(text)),
		)
		return nil, fmt.Errorf("TTS HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		logging.LogWarn("Kokoro TTS request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("TTS request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.String("voice", request.Voice),
		zap.Int("text_length", len(text)),
		zap.Duration("processing_time", time.Since(startTime)),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Int64("content_length", resp.ContentLength),
	)

	return &Result{
		Audio:       resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Format:      request.Format,
		Length:      resp.ContentLength,
	}, nil
}

func (k *KokoroClient) buildRequest(text string, options *Options) KokoroRequest {
	request := KokoroRequest{
		Model:  "kokoro",
		Input:  text,
		Voice:  k.config.Voice,
		Format: k.config.ResponseFormat,
		Speed:  k.config.Speed,
	}
	normalize := k.config.Normalize

	if options != nil {
		if options.Voice != "" {
			request.Voice = options.Voice
		}
		if options.Speed > 0 {
			request.Speed = options.Speed
		}
		if options.ResponseFormat != "" {
			request.Format = options.ResponseFormat
		}
		normalize = options.Normalize
	}

	if !normalize {
		request.Options = map[string]interface{}{"normalize": false}
	}
	return request
}

// Voices returns the list of available voices, cached for an hour
func (k *KokoroClient) Voices(ctx context.Context) ([]string, error) {
	k.mu.RLock()
	if len(k.cachedVoices) > 0 && time.Since(k.voicesCacheTime) < voicesCacheTTL {
		voices := append([]string(nil), k.cachedVoices...)
		k.mu.RUnlock()
		return voices, nil
	}
	k.mu.RUnlock()

	var voicesResponse KokoroVoicesResponse
	if err := k.getVoices(ctx, &voicesResponse); err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.cachedVoices = append([]string(nil), voicesResponse.Voices...)
	k.voicesCacheTime = time.Now()
	k.mu.Unlock()

	logging.Sugar.Debugw("🔊 Retrieved available voices",
		"count", len(voicesResponse.Voices),
		"voices", voicesResponse.Voices,
	)

	return voicesResponse.Voices, nil
}

// Ping checks that the Kokoro service answers
func (k *KokoroClient) Ping(ctx context.Context) error {
	if err := k.getVoices(ctx, nil); err != nil {
		return fmt.Errorf("Kokoro TTS unavailable: %w", err)
	}
	return nil
}

func (k *KokoroClient) getVoices(ctx context.Context, out *KokoroVoicesResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/audio/voices", nil)
	if err != nil {
		return fmt.Errorf("failed to create voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("voices request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode voices response: %w", err)
	}
	return nil
}

// Close cleans up resources
func (k *KokoroClient) Close() error {
	k.client.CloseIdleConnections()
	return nil
}
