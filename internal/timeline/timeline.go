// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package timeline holds the message list for the selected chat session.
//
// The timeline is a projection, not a per-session cache: switching the
// selected session discards it and rebuilds it from fetched history. A
// reload generation counter ensures a history fetch that resolves after a
// newer selection can never interleave stale entries into the new session.
package timeline

import "sync"

// Entry is one rendered message. Immutable once appended.
type Entry struct {
	Text   string
	IsUser bool
}

// Timeline is the ordered message sequence for the selected session.
type Timeline struct {
	mu         sync.Mutex
	entries    []Entry
	fetching   bool
	generation uint64
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{}
}

// Append pushes an entry onto the end of the sequence.
func (t *Timeline) Append(text string, isUser bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Text: text, IsUser: isUser})
}

// Reset clears the timeline.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// Entries returns a copy of the current sequence.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Fetching reports whether a history reload is in flight.
func (t *Timeline) Fetching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetching
}

// =============================================================================
// RELOAD PROTOCOL
// =============================================================================

// BeginReload starts the selection-change protocol: the timeline is cleared
// and the fetch-in-flight flag raised before any history is requested. The
// returned generation must be handed back to CompleteReload.
func (t *Timeline) BeginReload() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.fetching = true
	t.generation++
	return t.generation
}

// CompleteReload appends fetched history pairwise (human, then assistant) in
// storage order and drops the fetch flag. Results from a superseded reload
// are discarded: the newer selection already owns the timeline.
func (t *Timeline) CompleteReload(generation uint64, pairs [][2]string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return false
	}
	for _, p := range pairs {
		t.entries = append(t.entries, Entry{Text: p[0], IsUser: true}, Entry{Text: p[1], IsUser: false})
	}
	t.fetching = false
	return true
}
