// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/audio"
	"github.com/mergestack/chatbot-tui/internal/chats"
	"github.com/mergestack/chatbot-tui/internal/envelope"
	"github.com/mergestack/chatbot-tui/internal/timeline"
	"github.com/mergestack/chatbot-tui/internal/transport"
)

// =============================================================================
// PHASES
// =============================================================================

// Phase is the submission lifecycle state. Exactly one submission exists at
// a time; every entry point checks the phase before doing anything else.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseAwaitingTranscription
	PhaseAwaitingReply
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseAwaitingTranscription:
		return "awaiting_transcription"
	case PhaseAwaitingReply:
		return "awaiting_reply"
	}
	return "unknown"
}

var (
	// ErrBusy indicates a submission is already in flight.
	ErrBusy = errors.New("submission already in flight")
	// ErrEmptySubmission indicates the input was empty or whitespace.
	ErrEmptySubmission = errors.New("empty submission")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is the slice of the transport client the orchestrator drives.
type Backend interface {
	Complete(ctx context.Context, model, chatID, prompt string) (string, error)
	Transcribe(ctx context.Context, blob []byte, filename string) (string, error)
	Messages(ctx context.Context, chatID string) ([]transport.MessagePair, error)
	SaveMessage(ctx context.Context, chatID, human, assistant string) error
}

// Recorder is the slice of the audio engine the orchestrator drives.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (audio.Blob, error)
	Abort()
	Recording() bool
	Levels() [3]float64
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the submission phase machine and routes each accepted
// submission through the backend, the timeline, and the session store.
type Orchestrator struct {
	mu         sync.Mutex
	phase      Phase
	submission string
	model      string
	notice     string

	backend  Backend
	recorder Recorder
	store    *chats.Store
	tl       *timeline.Timeline
	log      *zap.Logger
}

// New creates an idle orchestrator.
func New(backend Backend, recorder Recorder, store *chats.Store, tl *timeline.Timeline, model string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		backend:  backend,
		recorder: recorder,
		store:    store,
		tl:       tl,
		model:    model,
		log:      log,
	}
}

// Phase returns the current submission phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Loading reports whether an assistant reply is pending.
func (o *Orchestrator) Loading() bool { return o.Phase() == PhaseAwaitingReply }

// UserLoading reports whether a transcription is pending.
func (o *Orchestrator) UserLoading() bool { return o.Phase() == PhaseAwaitingTranscription }

// Recording reports whether audio capture is active.
func (o *Orchestrator) Recording() bool { return o.Phase() == PhaseRecording }

// Levels exposes the capture level meter.
func (o *Orchestrator) Levels() [3]float64 { return o.recorder.Levels() }

// Model returns the active completion model.
func (o *Orchestrator) Model() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

// SetModel switches the completion model for subsequent submissions.
func (o *Orchestrator) SetModel(model string) {
	o.mu.Lock()
	o.model = model
	o.mu.Unlock()
}

// Notice returns and clears the pending out-of-band notice. Notices carry
// failures that have no timeline entry, like a failed transcription.
func (o *Orchestrator) Notice() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.notice
	o.notice = ""
	return n
}

func (o *Orchestrator) setNotice(text string) {
	o.mu.Lock()
	o.notice = text
	o.mu.Unlock()
}

// =============================================================================
// TEXT SUBMISSION
// =============================================================================

// SubmitText runs a text prompt through the completion flow. Empty input
// and non-idle phases are rejected before any network traffic.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptySubmission
	}
	if err := o.transition(PhaseIdle, PhaseAwaitingReply); err != nil {
		return err
	}
	submission := o.beginSubmission()

	sessionID, err := o.ensureSession(ctx)
	if err != nil {
		o.setPhase(PhaseIdle)
		return err
	}

	o.tl.Append(text, true)
	o.completeAndRecord(ctx, sessionID, text, submission)
	return nil
}

// completeAndRecord runs the shared tail of every submission: completion
// call, reply (or failure text) into the timeline, best-effort persistence
// and title derivation, back to idle. The human entry is already appended.
// The reply is applied only while its submission tag is still current and
// its session still selected; anything else is discarded.
func (o *Orchestrator) completeAndRecord(ctx context.Context, sessionID, prompt, submission string) {
	o.mu.Lock()
	model := o.model
	o.mu.Unlock()

	reply, err := o.backend.Complete(ctx, model, sessionID, prompt)

	defer o.setPhase(PhaseIdle)

	if o.currentSubmission() != submission || o.store.SelectedID() != sessionID {
		o.log.Debug("stale reply discarded",
			zap.String("submission", submission),
			zap.String("session", sessionID))
		return
	}

	if err != nil {
		// Backend failures and decrypt failures alike render as the
		// assistant entry; the timeline is the single channel of truth.
		o.tl.Append(envelope.FaultMessage(err), false)
		o.log.Warn("completion failed",
			zap.String("submission", submission),
			zap.String("session", sessionID),
			zap.Error(err))
		return
	}

	o.tl.Append(reply, false)

	if err := o.backend.SaveMessage(ctx, sessionID, prompt, reply); err != nil {
		o.log.Warn("message persistence failed",
			zap.String("session", sessionID), zap.Error(err))
	}
	if err := o.store.DeriveTitle(ctx, sessionID, prompt); err != nil {
		o.log.Debug("title derivation skipped",
			zap.String("session", sessionID), zap.Error(err))
	}
}

// =============================================================================
// AUDIO SUBMISSION
// =============================================================================

// ToggleRecording starts capture from idle, or stops it and submits the
// recording. The second call runs the full transcription and completion
// flow before returning. Each half claims its target phase atomically
// before touching the recorder, so of two concurrent toggles exactly one
// proceeds; the loser gets ErrBusy without disturbing the winner's phase.
func (o *Orchestrator) ToggleRecording(ctx context.Context) error {
	if o.casPhase(PhaseIdle, PhaseRecording) {
		if err := o.recorder.Start(ctx); err != nil {
			o.casPhase(PhaseRecording, PhaseIdle)
			return err
		}
		if o.Phase() != PhaseRecording {
			// A concurrent toggle reclaimed the phase while the device was
			// still acquiring; this capture has no owner.
			o.recorder.Abort()
			return ErrBusy
		}
		return nil
	}

	if o.casPhase(PhaseRecording, PhaseAwaitingTranscription) {
		submission := o.beginSubmission()
		blob, err := o.recorder.Stop()
		if err != nil {
			o.casPhase(PhaseAwaitingTranscription, PhaseIdle)
			return err
		}
		return o.submitTranscription(ctx, blob, submission)
	}

	return ErrBusy
}

// SubmitAudio transcribes a recording and runs the completion flow on the
// transcript. A failed or empty transcription surfaces as a notice, never
// as timeline entries.
func (o *Orchestrator) SubmitAudio(ctx context.Context, blob audio.Blob) error {
	if !o.casPhase(PhaseIdle, PhaseAwaitingTranscription) {
		return ErrBusy
	}
	return o.submitTranscription(ctx, blob, o.beginSubmission())
}

func (o *Orchestrator) submitTranscription(ctx context.Context, blob audio.Blob, submission string) error {
	sessionID, err := o.ensureSession(ctx)
	if err != nil {
		o.setPhase(PhaseIdle)
		return err
	}

	text, err := o.backend.Transcribe(ctx, blob.Data, blob.Filename)
	if err != nil {
		o.setPhase(PhaseIdle)
		o.setNotice(envelope.FaultMessage(err))
		o.log.Warn("transcription failed",
			zap.String("submission", submission),
			zap.String("session", sessionID), zap.Error(err))
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		o.setPhase(PhaseIdle)
		o.setNotice("Nothing was transcribed from the recording.")
		return ErrEmptySubmission
	}

	if o.currentSubmission() != submission || o.store.SelectedID() != sessionID {
		o.setPhase(PhaseIdle)
		o.log.Debug("stale transcript discarded",
			zap.String("submission", submission),
			zap.String("session", sessionID))
		return nil
	}

	o.tl.Append(text, true)
	o.setPhase(PhaseAwaitingReply)
	o.completeAndRecord(ctx, sessionID, text, submission)
	return nil
}

// =============================================================================
// SESSION NAVIGATION
// =============================================================================

// SelectSession switches the active session and reloads its history via
// the reset-then-fetch protocol. A reload superseded by a newer selection
// is discarded by the timeline's generation check.
func (o *Orchestrator) SelectSession(ctx context.Context, id string) error {
	if !o.store.Select(id) {
		return chats.ErrNotFound
	}
	generation := o.tl.BeginReload()

	pairs, err := o.backend.Messages(ctx, id)
	if err != nil {
		o.tl.CompleteReload(generation, nil)
		o.setNotice(envelope.FaultMessage(err))
		o.log.Warn("history fetch failed", zap.String("session", id), zap.Error(err))
		return err
	}

	history := make([][2]string, len(pairs))
	for i, p := range pairs {
		history[i] = [2]string{p.HumanMessage, p.AIMessage}
	}
	o.tl.CompleteReload(generation, history)
	return nil
}

// NewSession creates a fresh session, selects it, and clears the timeline.
func (o *Orchestrator) NewSession(ctx context.Context) (chats.Session, error) {
	sess, err := o.store.Create(ctx)
	if err != nil {
		return chats.Session{}, err
	}
	o.tl.Reset()
	return sess, nil
}

// DeleteSession removes a session. When the deleted session was selected,
// the timeline is cleared; when the deletion rolls back a previously
// selected session, its history is refetched.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	wasSelected, err := o.store.Delete(ctx, id)
	if err != nil {
		if wasSelected && o.store.SelectedID() == id {
			// Rollback restored the selection; bring the history back too.
			if selErr := o.SelectSession(ctx, id); selErr != nil {
				o.log.Warn("history restore after failed delete",
					zap.String("session", id), zap.Error(selErr))
			}
		}
		return err
	}
	if wasSelected {
		o.tl.Reset()
	}
	return nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// ensureSession returns the selected session ID, creating and selecting a
// session when none is active.
func (o *Orchestrator) ensureSession(ctx context.Context) (string, error) {
	if id := o.store.SelectedID(); id != "" {
		return id, nil
	}
	sess, err := o.store.Create(ctx)
	if err != nil {
		return "", err
	}
	o.tl.Reset()
	return sess.ID, nil
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// casPhase moves from one phase to another atomically, reporting whether
// the current phase matched.
func (o *Orchestrator) casPhase(from, to Phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != from {
		return false
	}
	o.phase = to
	return true
}

// transition is casPhase with ErrBusy for callers that propagate the
// failure.
func (o *Orchestrator) transition(from, to Phase) error {
	if !o.casPhase(from, to) {
		return ErrBusy
	}
	return nil
}

// beginSubmission tags the submission now in flight. Replies carrying an
// older tag are discarded.
func (o *Orchestrator) beginSubmission() string {
	id := uuid.NewString()
	o.mu.Lock()
	o.submission = id
	o.mu.Unlock()
	return id
}

func (o *Orchestrator) currentSubmission() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submission
}
