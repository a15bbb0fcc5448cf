// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chats maintains the in-memory, ordered collection of chat
// sessions and the current selection.
//
// Mutating operations are optimistic where the UI benefits (delete applies
// locally before the network confirms) but always compensating: a failed
// delete reinserts the session at its original position and restores the
// selection. Create and title derivation are guarded against duplicate
// concurrent attempts.
package chats
