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
	"testing"
	"time"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSServiceDefaults(t *testing.T) {
	ns := NewNATSService(config.NATSConfig{})
	assert.Equal(t, nats.DefaultURL, ns.cfg.URL)
	assert.False(t, ns.IsConnected())
	assert.Equal(t, nats.Statistics{}, ns.GetStats())
}

func TestNATSServiceRequiresConnection(t *testing.T) {
	ns := NewNATSService(config.NATSConfig{URL: "nats://localhost:4222"})

	assert.ErrorIs(t, ns.Publish("loqa.todo.device.a.speak", []byte("{}")), ErrNotConnected)

	unsub, err := ns.Subscribe("loqa.todo.device.a.spoken", func(string, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, unsub)

	assert.ErrorIs(t, ns.Ping(), ErrNotConnected)
	ns.Close()
}

func TestNATSServiceConnectFailure(t *testing.T) {
	ns := NewNATSService(config.NATSConfig{
		URL:           "nats://127.0.0.1:1",
		MaxReconnect:  0,
		ReconnectWait: 10 * time.Millisecond,
	})

	err := ns.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
	assert.False(t, ns.IsConnected())
}
