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

package grpc

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/loqa-todo/internal/logging"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service names reported by the health server
const (
	ServiceBackend = "loqa.todo.Backend"
	ServiceVoice   = "loqa.todo.Voice"
	ServiceDevice  = "loqa.todo.Device"
	ServiceTTS     = "loqa.todo.TTS"
)

// Probe reports whether a dependency is usable; nil means serving
type Probe func(ctx context.Context) error

// ServiceStatus is the last probe outcome for one service
type ServiceStatus struct {
	Serving   bool      `json:"serving"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthService publishes dependency health over the standard gRPC health protocol
type HealthService struct {
	health   *health.Server
	server   *grpclib.Server
	probes   map[string]Probe
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	statuses map[string]ServiceStatus
	onChange func(service string, serving bool)
}

// NewHealthService creates a health service; Register probes before calling Start
func NewHealthService() *HealthService {
	hs := &HealthService{
		health:   health.NewServer(),
		server:   grpclib.NewServer(),
		probes:   make(map[string]Probe),
		interval: 30 * time.Second,
		timeout:  5 * time.Second,
		statuses: make(map[string]ServiceStatus),
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)
	return hs
}

// Register adds a probed service; it reports NOT_SERVING until the first probe passes
func (hs *HealthService) Register(service string, probe Probe) {
	hs.mu.Lock()
	hs.probes[service] = probe
	hs.mu.Unlock()
	hs.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// SetInterval changes the probe period
func (hs *HealthService) SetInterval(interval time.Duration) {
	if interval > 0 {
		hs.interval = interval
	}
}

// SetChangeCallback is invoked whenever a service flips between serving and not serving
func (hs *HealthService) SetChangeCallback(callback func(service string, serving bool)) {
	hs.mu.Lock()
	hs.onChange = callback
	hs.mu.Unlock()
}

// Start probes all services now and then periodically until ctx is done
func (hs *HealthService) Start(ctx context.Context) {
	hs.CheckNow(ctx)

	ticker := time.NewTicker(hs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.CheckNow(ctx)
		}
	}
}

// CheckNow runs every probe once
func (hs *HealthService) CheckNow(ctx context.Context) {
	hs.mu.RLock()
	probes := make(map[string]Probe, len(hs.probes))
	for name, probe := range hs.probes {
		probes[name] = probe
	}
	hs.mu.RUnlock()

	for name, probe := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, hs.timeout)
		err := probe(probeCtx)
		cancel()
		hs.record(name, err)
	}
}

func (hs *HealthService) record(service string, err error) {
	status := ServiceStatus{Serving: err == nil, CheckedAt: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}

	hs.mu.Lock()
	previous, seen := hs.statuses[service]
	hs.statuses[service] = status
	callback := hs.onChange
	hs.mu.Unlock()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	if !status.Serving {
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.health.SetServingStatus(service, servingStatus)

	if !seen || previous.Serving != status.Serving {
		if status.Serving {
			logging.Sugar.Infow("💚 Service healthy", "service", service)
		} else {
			logging.LogWarn("Service unhealthy", zap.String("service", service), zap.String("error", status.Error))
		}
		if callback != nil {
			go callback(service, status.Serving)
		}
	}
}

// Statuses returns a copy of the latest probe outcomes
func (hs *HealthService) Statuses() map[string]ServiceStatus {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	out := make(map[string]ServiceStatus, len(hs.statuses))
	for name, status := range hs.statuses {
		out[name] = status
	}
	return out
}

// Services lists the registered service names in order
func (hs *HealthService) Services() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	names := make([]string, 0, len(hs.probes))
	for name := range hs.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serve accepts gRPC connections on port until Stop is called
func (hs *HealthService) Serve(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", port, err)
	}
	return hs.ServeListener(listener)
}

// ServeListener accepts gRPC connections on an existing listener
func (hs *HealthService) ServeListener(listener net.Listener) error {
	logging.Sugar.Infow("🩺 gRPC health server listening", "addr", listener.Addr().String())
	if err := hs.server.Serve(listener); err != nil && err != grpclib.ErrServerStopped {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the gRPC server
func (hs *HealthService) Stop() {
	hs.health.Shutdown()
	hs.server.GracefulStop()
}
