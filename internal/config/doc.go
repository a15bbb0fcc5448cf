// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// chatbot-tui.
//
// Configuration lives in TOML at ~/.chatbot/config.toml with environment
// variable overrides on top (a .env file is honored when present). Two
// preference fields, dark_mode and last_model, are written back whenever
// they change; everything else is read-only at runtime except the [models]
// routing table, which a file watcher hot-reloads.
package config
