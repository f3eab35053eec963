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
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when publishing or subscribing before Connect
var ErrNotConnected = errors.New("NATS connection not established")

// Handler receives the subject and payload of one message
type Handler func(subject string, data []byte)

// Transport is the slice of a message bus the device bridge needs
type Transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler Handler) (unsubscribe func() error, err error)
}

// NATSService handles NATS messaging for the to-do hub
type NATSService struct {
	conn *nats.Conn
	cfg  config.NATSConfig
}

// NewNATSService creates a new NATS service instance
func NewNATSService(cfg config.NATSConfig) *NATSService {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	return &NATSService{cfg: cfg}
}

// Connect establishes connection to NATS server
func (ns *NATSService) Connect() error {
	logging.Sugar.Infow("🔌 Connecting to NATS", "url", ns.cfg.URL)

	opts := []nats.Option{
		nats.Name("loqa-todo"),
		nats.ReconnectWait(ns.cfg.ReconnectWait),
		nats.MaxReconnects(ns.cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogWarn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Sugar.Infow("🔄 NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Sugar.Infow("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(ns.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = conn
	logging.Sugar.Infow("✅ Connected to NATS server", "url", conn.ConnectedUrl())
	return nil
}

// Publish sends data on subject
func (ns *NATSService) Publish(subject string, data []byte) error {
	if ns.conn == nil {
		return ErrNotConnected
	}
	if err := ns.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	logging.LogNATSEvent(subject, "publish", zap.Int("bytes", len(data)))
	return nil
}

// Subscribe delivers every message on subject to handler
func (ns *NATSService) Subscribe(subject string, handler Handler) (func() error, error) {
	if ns.conn == nil {
		return nil, ErrNotConnected
	}

	sub, err := ns.conn.Subscribe(subject, func(msg *nats.Msg) {
		logging.LogNATSEvent(msg.Subject, "receive", zap.Int("bytes", len(msg.Data)))
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Ping reports whether the connection is usable
func (ns *NATSService) Ping() error {
	if !ns.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close drains and closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn == nil {
		return
	}
	if err := ns.conn.Drain(); err != nil {
		logging.LogWarn("NATS drain failed", zap.Error(err))
		ns.conn.Close()
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}
