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
	"fmt"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/console"
	grpcsvc "github.com/loqalabs/loqa-todo/internal/grpc"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/voice"
	"github.com/spf13/cobra"
)

var (
	voiceGRPCPort int
	startMuted    bool
	engineFlag    string
	deviceFlag    string
)

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Run the headless voice controller",
	Long: `Runs the voice controller against a device bridged over NATS.

The device publishes transcripts and plays utterances; the controller listens
for the wake phrase, interprets commands and calls the task backend. Dependency
health is served over the gRPC health protocol.`,
	RunE: runVoice,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive to-do console",
	Long: `Opens a terminal console for the voice controller.

Type commands such as "add buy milk tomorrow" or "list pending tasks".
Lines starting with /say are treated as speech, e.g. "/say hey todo".

Keys:
  Ctrl+L    - toggle voice capture
  ↑/↓       - select a task
  Ctrl+T    - toggle the selected task
  Ctrl+D    - delete the selected task
  Ctrl+S    - change sort order
  y/n, Esc  - answer or dismiss a confirmation
  Ctrl+C    - quit`,
	RunE: runConsole,
}

func init() {
	for _, cmd := range []*cobra.Command{voiceCmd, consoleCmd} {
		cmd.Flags().StringVar(&engineFlag, "engine", "", "Recognition engine: nats, manual, none (default: $VOICE_ENGINE)")
		cmd.Flags().StringVar(&deviceFlag, "device", "", "Device ID to bridge (default: $VOICE_DEVICE_ID)")
		cmd.Flags().BoolVar(&startMuted, "muted", false, "Start with voice capture off")
	}
	voiceCmd.Flags().IntVar(&voiceGRPCPort, "grpc-port", 0, "gRPC health port (default: server gRPC port + 1)")

	rootCmd.AddCommand(voiceCmd)
	rootCmd.AddCommand(consoleCmd)
}

func applyVoiceFlags() {
	if engineFlag != "" {
		cfg.Voice.Engine = engineFlag
	}
	if deviceFlag != "" {
		cfg.Voice.DeviceID = deviceFlag
	}
}

func runVoice(cmd *cobra.Command, args []string) error {
	applyVoiceFlags()
	if err := setupLogging(false); err != nil {
		return err
	}

	stack, err := newVoiceStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, stop := signalContext()
	defer stop()

	orch := voice.New(voice.SettingsFromConfig(cfg.Voice, cfg.Backend), stack.engine, stack.speaker, stack.backend, logObserver{})

	health := grpcsvc.NewHealthService()
	stack.registerProbes(health, orch)
	go health.Start(ctx)

	port := voiceGRPCPort
	if port == 0 {
		port = cfg.Server.GRPCPort + 1
	}
	go func() {
		if err := health.Serve(port); err != nil {
			logging.LogError(err, "gRPC health server stopped")
		}
	}()
	defer health.Stop()

	logging.Sugar.Infow("🚀 Voice controller starting", "grpc_port", port, "device", cfg.Voice.DeviceID)

	orch.Refresh()
	if !startMuted {
		orch.SetListening(true)
	}
	return orch.Run(ctx)
}

func runConsole(cmd *cobra.Command, args []string) error {
	if engineFlag == "" && cfg.Voice.Engine == config.EngineNATS {
		// The console simulates the microphone unless a device is asked for.
		cfg.Voice.Engine = config.EngineManual
	}
	applyVoiceFlags()
	if err := setupLogging(true); err != nil {
		return err
	}

	stack, err := newVoiceStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, stop := signalContext()
	defer stop()

	relay := console.NewRelay(stack.speaker)
	orch := voice.New(voice.SettingsFromConfig(cfg.Voice, cfg.Backend), stack.engine, relay, stack.backend, relay)

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()
	if !startMuted {
		orch.SetListening(true)
	}

	var mic console.Microphone
	if stack.mic != nil {
		mic = stack.mic
	}
	uiErr := console.Run(ctx, orch, mic, relay)
	stop()

	if err := <-runErr; err != nil && uiErr == nil {
		return fmt.Errorf("voice controller: %w", err)
	}
	return uiErr
}
