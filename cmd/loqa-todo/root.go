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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backendURL string
	logLevel   string
	logFile    string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "loqa-todo",
	Short: "Voice-driven to-do list for Loqa",
	Long: `loqa-todo keeps a to-do list you can manage by voice.

Commands:
  serve    - task REST backend with gRPC health
  voice    - headless voice controller bridged to a device over NATS
  console  - terminal console with typed and simulated voice input
  tasks    - manage tasks from the command line`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if backendURL != "" {
			loaded.Backend.URL = backendURL
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	logging.Close()
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Task backend URL (default: $TODO_BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// setupLogging configures the global logger. Quiet commands only log when
// asked to, so output stays readable.
func setupLogging(quiet bool) error {
	if logFile != "" {
		zapConfig := zap.NewProductionConfig()
		zapConfig.OutputPaths = []string{logFile}
		zapConfig.ErrorOutputPaths = []string{logFile}
		if level, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
			zapConfig.Level = level
		}
		logger, err := zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logging.UseLogger(logger)
		return nil
	}

	if quiet && !verbose {
		logging.UseLogger(zap.NewNop())
		return nil
	}

	return logging.InitializeWithConfig(logging.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
