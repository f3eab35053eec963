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

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-todo/internal/api"
	"github.com/loqalabs/loqa-todo/internal/config"
	grpcsvc "github.com/loqalabs/loqa-todo/internal/grpc"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/storage"
	"go.uber.org/zap"
)

// ServiceDatabase is the health service name of the task store
const ServiceDatabase = "loqa.todo.Database"

// pruneInterval is how often expired voice events are removed
const pruneInterval = time.Hour

// Server is the to-do REST backend with its gRPC health endpoint
type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	server *http.Server

	database    *storage.Database
	tasks       *storage.TasksStore
	voiceEvents *storage.VoiceEventsStore
	health      *grpcsvc.HealthService

	// Server context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the task database and builds the server
func New(cfg *config.Config) (*Server, error) {
	database, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	return NewWithDatabase(cfg, database), nil
}

// NewWithDatabase builds the server on an already opened database
func NewWithDatabase(cfg *config.Config, database *storage.Database) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:         cfg,
		mux:         http.NewServeMux(),
		database:    database,
		tasks:       storage.NewTasksStore(database),
		voiceEvents: storage.NewVoiceEventsStore(database),
		health:      grpcsvc.NewHealthService(),
		ctx:         ctx,
		cancel:      cancel,
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.health.Register(ServiceDatabase, func(context.Context) error {
		return s.database.Ping()
	})

	s.routes()
	return s
}

// Handler exposes the HTTP routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Health returns the health service so callers can register more probes
func (s *Server) Health() *grpcsvc.HealthService {
	return s.health
}

// routes sets up HTTP routing
func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	api.NewTasksHandler(s.tasks).Register(s.mux)
	api.NewVoiceEventsHandler(s.voiceEvents).Register(s.mux)

	logging.Sugar.Infow("🌐 HTTP routes configured",
		"tasks_endpoint", "/tasks",
		"voice_events_endpoint", "/api/voice-events")
}

// Start runs the HTTP server, the gRPC health server and background maintenance
func (s *Server) Start() error {
	go s.health.Start(s.ctx)
	go func() {
		if err := s.health.Serve(s.cfg.Server.GRPCPort); err != nil {
			logging.LogError(err, "gRPC health server stopped")
		}
	}()
	go s.pruneVoiceEvents()

	logging.Sugar.Infow("🚀 Loqa to-do backend starting",
		"http_addr", s.server.Addr,
		"grpc_port", s.cfg.Server.GRPCPort,
		"db_path", s.database.GetPath())

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server and closes the database
func (s *Server) Stop() error {
	logging.Sugar.Infow("🛑 Shutting down Loqa to-do backend")

	s.cancel()
	s.health.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := s.database.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	logging.Sugar.Infow("✅ Loqa to-do backend shut down successfully")
	return nil
}

// pruneVoiceEvents removes voice events older than the configured retention
func (s *Server) pruneVoiceEvents() {
	retention := s.cfg.Database.EventRetention
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		s.pruneOnce(time.Now().Add(-retention))

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pruneOnce(cutoff time.Time) {
	removed, err := s.voiceEvents.PruneBefore(cutoff)
	if err != nil {
		logging.LogError(err, "Failed to prune voice events")
		return
	}
	if removed > 0 {
		logging.Sugar.Infow("🧹 Pruned voice events", "removed", removed, "cutoff", cutoff)
	}
}

// handleHealth reports database reachability and the last probe results
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := http.StatusOK
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"services":  s.health.Statuses(),
	}

	if err := s.database.Ping(); err != nil {
		logging.LogWarn("Health check database ping failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		health["status"] = "unavailable"
		health["error"] = "database unreachable"
	}

	api.WriteJSON(w, status, health)
}
