// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view for the TUI.
//
// This file defines the Bubble Tea message types used by the view. Every
// async step the orchestrator runs gets its own message so the update loop
// stays a plain switch.
package chat

import "github.com/mergestack/chatbot-tui/internal/chats"

// sessionsLoadedMsg reports the startup session list fetch.
type sessionsLoadedMsg struct {
	err error
}

// submissionDoneMsg reports a finished text or audio submission. The
// timeline already holds the result; the view just re-renders and surfaces
// any notice.
type submissionDoneMsg struct {
	err error
}

// recordingToggledMsg reports a recorder start or a stop-and-submit.
type recordingToggledMsg struct {
	err error
}

// historyLoadedMsg reports a session switch and its history reload.
type historyLoadedMsg struct {
	sessionID string
	err       error
}

// sessionCreatedMsg reports a new session.
type sessionCreatedMsg struct {
	session chats.Session
	err     error
}

// sessionDeletedMsg reports a session deletion (or its rollback).
type sessionDeletedMsg struct {
	sessionID string
	err       error
}

// levelTickMsg drives the recording level meter refresh.
type levelTickMsg struct{}
