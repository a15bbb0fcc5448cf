// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport implements the HTTP client for the ChatBot backend.
//
// The client owns no conversation state. Every call is bounded by a
// per-request timeout, and every network or parse failure is converted into
// the uniform failure envelope with the fixed fallback message - nothing is
// thrown past this boundary, so callers have a single branch for failures.
//
// Completion routing is a configuration table (model -> endpoint path) with
// a default endpoint, swappable at runtime when the config file changes.
package transport
