// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process logger. The TUI owns the terminal, so
// logs go to a file under the config directory instead of stderr.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logFileName is the log file under the config directory.
const logFileName = "chatbot.log"

// New builds a JSON file logger at Info level, or Debug when debug is set.
// A logger that cannot open its file degrades to a no-op rather than
// breaking startup.
func New(configDir string, debug bool) *zap.Logger {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return zap.NewNop()
	}
	path := filepath.Join(configDir, logFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return zap.NewNop()
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(f),
		level,
	)
	return zap.New(core)
}
