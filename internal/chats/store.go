// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chats

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/transport"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCreateInFlight indicates a create is already running; the duplicate
	// attempt is ignored, not queued.
	ErrCreateInFlight = errors.New("chat creation already in flight")
	// ErrNotFound indicates the session does not exist locally.
	ErrNotFound = errors.New("session not found")
)

// =============================================================================
// TYPES
// =============================================================================

// Session is one chat thread. A nil Title means "untitled - pending
// derivation".
type Session struct {
	ID        string
	Title     *string
	CreatedAt time.Time
}

// DisplayTitle returns the title or the placeholder for untitled sessions.
func (s Session) DisplayTitle() string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	return "New Chat"
}

// Backend is the slice of the transport client the store depends on.
type Backend interface {
	ListChats(ctx context.Context) ([]transport.Chat, error)
	CreateChat(ctx context.Context) (transport.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	DeriveTitle(ctx context.Context, firstHumanMessage string) (string, error)
	UpdateTitle(ctx context.Context, chatID, title string) error
}

// =============================================================================
// STORE
// =============================================================================

// Store is the ordered session collection with selection.
type Store struct {
	mu            sync.Mutex
	sessions      []*Session
	selected      string
	creating      bool
	titleInFlight map[string]bool

	backend Backend
	log     *zap.Logger
}

// NewStore creates an empty store.
func NewStore(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		titleInFlight: make(map[string]bool),
		backend:       backend,
		log:           log,
	}
}

// Load replaces the collection with the server's chat list, preserving the
// selection when the selected session survives.
func (s *Store) Load(ctx context.Context) error {
	chats, err := s.backend.ListChats(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = s.sessions[:0]
	found := false
	for _, c := range chats {
		s.sessions = append(s.sessions, &Session{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt})
		if c.ID == s.selected {
			found = true
		}
	}
	if !found {
		s.selected = ""
	}
	return nil
}

// =============================================================================
// CREATE
// =============================================================================

// Create allocates a session server-side, appends it, and selects it.
// A duplicate call while one is in flight is a no-op.
func (s *Store) Create(ctx context.Context) (Session, error) {
	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return Session{}, ErrCreateInFlight
	}
	s.creating = true
	s.mu.Unlock()

	chat, err := s.backend.CreateChat(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creating = false
	if err != nil {
		s.log.Warn("failed to create chat", zap.Error(err))
		return Session{}, err
	}

	sess := &Session{ID: chat.ID, Title: chat.Title, CreatedAt: chat.CreatedAt}
	s.sessions = append(s.sessions, sess)
	s.selected = sess.ID
	return *sess, nil
}

// Creating reports whether a create is in flight.
func (s *Store) Creating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creating
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a session optimistically: the local removal (and, when it
// was selected, the cleared selection) happens before the network call. On
// failure the session is reinserted at its original position and the prior
// selection restored. Returns whether the deleted session was selected.
func (s *Store) Delete(ctx context.Context, id string) (wasSelected bool, err error) {
	s.mu.Lock()
	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	removed := s.sessions[idx]
	wasSelected = s.selected == id
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if wasSelected {
		s.selected = ""
	}
	s.mu.Unlock()

	if err := s.backend.DeleteChat(ctx, id); err != nil {
		s.log.Warn("failed to delete chat, rolling back", zap.String("chat_id", id), zap.Error(err))

		s.mu.Lock()
		if idx > len(s.sessions) {
			idx = len(s.sessions)
		}
		s.sessions = append(s.sessions[:idx], append([]*Session{removed}, s.sessions[idx:]...)...)
		if wasSelected {
			s.selected = id
		}
		s.mu.Unlock()
		return wasSelected, err
	}
	return wasSelected, nil
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// DeriveTitle fetches a server-generated summary of the first human message
// and persists it as the session title. It only runs for untitled sessions,
// and a per-session in-flight token prevents the duplicate derivation that
// back-to-back messages would otherwise trigger.
func (s *Store) DeriveTitle(ctx context.Context, id, firstHumanMessage string) error {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	if sess.Title != nil || s.titleInFlight[id] {
		s.mu.Unlock()
		return nil
	}
	s.titleInFlight[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.titleInFlight, id)
		s.mu.Unlock()
	}()

	title, err := s.backend.DeriveTitle(ctx, firstHumanMessage)
	if err != nil {
		s.log.Warn("failed to derive title", zap.String("chat_id", id), zap.Error(err))
		return err
	}

	s.mu.Lock()
	if sess := s.findLocked(id); sess != nil {
		sess.Title = &title
	}
	s.mu.Unlock()

	// Best-effort persistence; the in-memory title stands either way.
	if err := s.backend.UpdateTitle(ctx, id, title); err != nil {
		s.log.Warn("failed to persist title", zap.String("chat_id", id), zap.Error(err))
	}
	return nil
}

// =============================================================================
// SELECTION AND ACCESS
// =============================================================================

// Select makes a session current. Selecting an unknown ID is a no-op.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return false
	}
	s.selected = id
	return true
}

// ClearSelection deselects any current session.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// SelectedID returns the current selection, or "" when none.
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Selected returns the selected session.
func (s *Store) Selected() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(s.selected); sess != nil {
		return cloneSession(sess), true
	}
	return Session{}, false
}

// Get returns a session by ID.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(id); sess != nil {
		return cloneSession(sess), true
	}
	return Session{}, false
}

// Sessions returns a snapshot of the collection in order.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) findLocked(id string) *Session {
	if id == "" {
		return nil
	}
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func cloneSession(sess *Session) Session {
	out := *sess
	if sess.Title != nil {
		title := *sess.Title
		out.Title = &title
	}
	return out
}
