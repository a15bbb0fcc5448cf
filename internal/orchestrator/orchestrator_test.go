// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/audio"
	"github.com/mergestack/chatbot-tui/internal/chats"
	"github.com/mergestack/chatbot-tui/internal/envelope"
	"github.com/mergestack/chatbot-tui/internal/timeline"
	"github.com/mergestack/chatbot-tui/internal/transport"
)

// fakeBackend satisfies both the orchestrator backend and the session
// store backend, recording every call in order.
type fakeBackend struct {
	calls []string

	completeReply string
	completeErr   error
	completeHook  func() // runs before Complete returns

	transcript    string
	transcribeErr error

	history     []transport.MessagePair
	historyErr  error
	historyHook func()

	saveErr error

	nextChatID int
	createErr  error
	deleteErr  error

	title    string
	titleErr error
}

func (b *fakeBackend) record(format string, args ...interface{}) {
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *fakeBackend) Complete(ctx context.Context, model, chatID, prompt string) (string, error) {
	b.record("complete %s %s %s", model, chatID, prompt)
	if b.completeHook != nil {
		b.completeHook()
	}
	return b.completeReply, b.completeErr
}

func (b *fakeBackend) Transcribe(ctx context.Context, blob []byte, filename string) (string, error) {
	b.record("transcribe %s %d", filename, len(blob))
	return b.transcript, b.transcribeErr
}

func (b *fakeBackend) Messages(ctx context.Context, chatID string) ([]transport.MessagePair, error) {
	b.record("messages %s", chatID)
	if b.historyHook != nil {
		b.historyHook()
	}
	return b.history, b.historyErr
}

func (b *fakeBackend) SaveMessage(ctx context.Context, chatID, human, assistant string) error {
	b.record("save %s %s %s", chatID, human, assistant)
	return b.saveErr
}

func (b *fakeBackend) ListChats(ctx context.Context) ([]transport.Chat, error) {
	b.record("list")
	return nil, nil
}

func (b *fakeBackend) CreateChat(ctx context.Context) (transport.Chat, error) {
	b.record("create")
	if b.createErr != nil {
		return transport.Chat{}, b.createErr
	}
	b.nextChatID++
	return transport.Chat{ID: fmt.Sprintf("chat-%d", b.nextChatID), CreatedAt: time.Now()}, nil
}

func (b *fakeBackend) DeleteChat(ctx context.Context, chatID string) error {
	b.record("delete %s", chatID)
	return b.deleteErr
}

func (b *fakeBackend) DeriveTitle(ctx context.Context, firstHumanMessage string) (string, error) {
	b.record("derive %s", firstHumanMessage)
	return b.title, b.titleErr
}

func (b *fakeBackend) UpdateTitle(ctx context.Context, chatID, title string) error {
	b.record("update-title %s %s", chatID, title)
	return nil
}

func (b *fakeBackend) callsMatching(prefix string) []string {
	var out []string
	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// fakeRecorder returns a canned blob.
type fakeRecorder struct {
	recording bool
	startErr  error
	stopErr   error
	blob      audio.Blob
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.recording = true
	return nil
}

func (r *fakeRecorder) Stop() (audio.Blob, error) {
	r.recording = false
	return r.blob, r.stopErr
}

func (r *fakeRecorder) Abort()             { r.recording = false }
func (r *fakeRecorder) Recording() bool    { return r.recording }
func (r *fakeRecorder) Levels() [3]float64 { return [3]float64{} }

func newTestOrchestrator(b *fakeBackend, r Recorder) (*Orchestrator, *chats.Store, *timeline.Timeline) {
	store := chats.NewStore(b, zap.NewNop())
	tl := timeline.New()
	if r == nil {
		r = &fakeRecorder{}
	}
	return New(b, r, store, tl, "gemini-1.5-flash", zap.NewNop()), store, tl
}

func TestSubmitTextSuccess(t *testing.T) {
	backend := &fakeBackend{completeReply: "Hello there", title: "Greetings"}
	orc, store, tl := newTestOrchestrator(backend, nil)

	if err := orc.SubmitText(context.Background(), "  hi  "); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle after submit, got %v", orc.Phase())
	}

	entries := tl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "hi" || !entries[0].IsUser {
		t.Errorf("unexpected human entry: %+v", entries[0])
	}
	if entries[1].Text != "Hello there" || entries[1].IsUser {
		t.Errorf("unexpected assistant entry: %+v", entries[1])
	}

	// No session existed, so one was created and selected.
	if store.SelectedID() != "chat-1" {
		t.Errorf("expected created session selected, got %q", store.SelectedID())
	}
	if got := backend.callsMatching("save chat-1 hi Hello there"); len(got) != 1 {
		t.Errorf("expected one save call, calls: %v", backend.calls)
	}
	if got := backend.callsMatching("derive hi"); len(got) != 1 {
		t.Errorf("expected one title derivation, calls: %v", backend.calls)
	}
}

func TestSubmitTextEmpty(t *testing.T) {
	backend := &fakeBackend{}
	orc, _, tl := newTestOrchestrator(backend, nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		if err := orc.SubmitText(context.Background(), input); !errors.Is(err, ErrEmptySubmission) {
			t.Errorf("input %q: expected ErrEmptySubmission, got %v", input, err)
		}
	}
	if len(backend.calls) != 0 {
		t.Errorf("expected no network calls, got %v", backend.calls)
	}
	if tl.Len() != 0 {
		t.Errorf("expected empty timeline, got %d entries", tl.Len())
	}
}

func TestSubmitTextWhileBusy(t *testing.T) {
	backend := &fakeBackend{completeReply: "ok"}
	orc, _, _ := newTestOrchestrator(backend, nil)
	orc.setPhase(PhaseAwaitingReply)

	if err := orc.SubmitText(context.Background(), "hello"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("expected no network calls, got %v", backend.calls)
	}
}

func TestSubmitTextFaultRendersInTimeline(t *testing.T) {
	backend := &fakeBackend{
		completeErr: &envelope.Fault{Message: "quota exceeded", StatusCode: 429},
	}
	orc, _, tl := newTestOrchestrator(backend, nil)

	if err := orc.SubmitText(context.Background(), "hi"); err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	entries := tl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Text != "quota exceeded" || entries[1].IsUser {
		t.Errorf("expected fault text as assistant entry, got %+v", entries[1])
	}
	// Failed replies are not persisted and derive no title.
	if got := backend.callsMatching("save"); len(got) != 0 {
		t.Errorf("expected no save, calls: %v", backend.calls)
	}
	if got := backend.callsMatching("derive"); len(got) != 0 {
		t.Errorf("expected no derive, calls: %v", backend.calls)
	}
}

func TestSubmitTextDecryptFailureDegrades(t *testing.T) {
	backend := &fakeBackend{completeErr: errors.New("decrypt: invalid padding")}
	orc, _, tl := newTestOrchestrator(backend, nil)

	if err := orc.SubmitText(context.Background(), "hi"); err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	entries := tl.Entries()
	if entries[1].Text != envelope.FallbackMessage {
		t.Errorf("expected fallback message, got %q", entries[1].Text)
	}
}

func TestSubmitTextStaleSessionDiscarded(t *testing.T) {
	backend := &fakeBackend{completeReply: "late reply"}
	orc, store, tl := newTestOrchestrator(backend, nil)

	if _, err := store.Create(context.Background()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// The selection changes while the completion is in flight.
	backend.completeHook = func() {
		other, _ := store.Create(context.Background())
		store.Select(other.ID)
	}

	if err := orc.SubmitText(context.Background(), "hi"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	entries := tl.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected only the human entry, got %d entries", len(entries))
	}
	if got := backend.callsMatching("save"); len(got) != 0 {
		t.Errorf("stale reply must not be persisted, calls: %v", backend.calls)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", orc.Phase())
	}
}

func TestSupersededSubmissionDiscarded(t *testing.T) {
	backend := &fakeBackend{completeReply: "late reply"}
	orc, store, tl := newTestOrchestrator(backend, nil)

	if _, err := store.Create(context.Background()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// A newer submission takes over while the completion is in flight; the
	// session stays the same, so only the submission tag tells them apart.
	backend.completeHook = func() { orc.beginSubmission() }

	if err := orc.SubmitText(context.Background(), "hi"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	entries := tl.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected only the human entry, got %d entries", len(entries))
	}
	if got := backend.callsMatching("save"); len(got) != 0 {
		t.Errorf("superseded reply must not be persisted, calls: %v", backend.calls)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", orc.Phase())
	}
}

func TestToggleRecordingRoundTrip(t *testing.T) {
	backend := &fakeBackend{transcript: "hello from voice", completeReply: "hi voice"}
	rec := &fakeRecorder{blob: audio.Blob{Data: []byte("wavdata"), Filename: "recording.wav"}}
	orc, _, tl := newTestOrchestrator(backend, rec)

	if err := orc.ToggleRecording(context.Background()); err != nil {
		t.Fatalf("start toggle failed: %v", err)
	}
	if orc.Phase() != PhaseRecording || !orc.Recording() {
		t.Fatalf("expected recording phase, got %v", orc.Phase())
	}

	if err := orc.ToggleRecording(context.Background()); err != nil {
		t.Fatalf("stop toggle failed: %v", err)
	}
	entries := tl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "hello from voice" || !entries[0].IsUser {
		t.Errorf("expected transcript as human entry, got %+v", entries[0])
	}
	if entries[1].Text != "hi voice" {
		t.Errorf("expected reply entry, got %+v", entries[1])
	}
	if got := backend.callsMatching("transcribe recording.wav 7"); len(got) != 1 {
		t.Errorf("expected one transcribe call, calls: %v", backend.calls)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", orc.Phase())
	}
}

func TestTranscriptionFailureIsNotice(t *testing.T) {
	backend := &fakeBackend{
		transcribeErr: &envelope.Fault{Message: "unintelligible audio", StatusCode: 422},
	}
	orc, _, tl := newTestOrchestrator(backend, nil)

	err := orc.SubmitAudio(context.Background(), audio.Blob{Data: []byte("x"), Filename: "recording.wav"})
	if err == nil {
		t.Fatal("expected error")
	}
	if tl.Len() != 0 {
		t.Errorf("transcription failure must not touch the timeline, got %d entries", tl.Len())
	}
	if got := orc.Notice(); got != "unintelligible audio" {
		t.Errorf("notice = %q", got)
	}
	if got := orc.Notice(); got != "" {
		t.Errorf("notice should clear after read, got %q", got)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", orc.Phase())
	}
}

func TestEmptyTranscriptIsNotice(t *testing.T) {
	backend := &fakeBackend{transcript: "   "}
	orc, _, tl := newTestOrchestrator(backend, nil)

	err := orc.SubmitAudio(context.Background(), audio.Blob{Data: []byte("x"), Filename: "recording.wav"})
	if !errors.Is(err, ErrEmptySubmission) {
		t.Fatalf("expected ErrEmptySubmission, got %v", err)
	}
	if tl.Len() != 0 {
		t.Errorf("expected empty timeline, got %d entries", tl.Len())
	}
	if orc.Notice() == "" {
		t.Error("expected a notice")
	}
	if got := backend.callsMatching("complete"); len(got) != 0 {
		t.Errorf("expected no completion call, calls: %v", backend.calls)
	}
}

func TestRecorderStartFailureStaysIdle(t *testing.T) {
	rec := &fakeRecorder{startErr: audio.ErrNoDevice}
	orc, _, _ := newTestOrchestrator(&fakeBackend{}, rec)

	if err := orc.ToggleRecording(context.Background()); !errors.Is(err, audio.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", orc.Phase())
	}
}

// blockingRecorder parks Stop until release is closed, holding the stop
// half of a toggle open so a concurrent toggle can race it.
type blockingRecorder struct {
	mu        sync.Mutex
	stopCalls int
	release   chan struct{}
	blob      audio.Blob
}

func (r *blockingRecorder) Start(ctx context.Context) error { return nil }

func (r *blockingRecorder) Stop() (audio.Blob, error) {
	r.mu.Lock()
	r.stopCalls++
	r.mu.Unlock()
	<-r.release
	return r.blob, nil
}

func (r *blockingRecorder) Abort()             {}
func (r *blockingRecorder) Recording() bool    { return false }
func (r *blockingRecorder) Levels() [3]float64 { return [3]float64{} }

func (r *blockingRecorder) stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

func TestToggleStopRaceKeepsSingleSubmission(t *testing.T) {
	backend := &fakeBackend{transcript: "hello", completeReply: "hi"}
	rec := &blockingRecorder{
		release: make(chan struct{}),
		blob:    audio.Blob{Data: []byte("wavdata"), Filename: "recording.wav"},
	}
	orc, _, tl := newTestOrchestrator(backend, rec)

	if err := orc.ToggleRecording(context.Background()); err != nil {
		t.Fatalf("start toggle failed: %v", err)
	}

	// The first stop toggle claims the phase and parks inside Stop.
	done := make(chan error, 1)
	go func() { done <- orc.ToggleRecording(context.Background()) }()
	deadline := time.Now().Add(2 * time.Second)
	for rec.stops() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first toggle never reached Stop")
		}
		time.Sleep(time.Millisecond)
	}

	// A second toggle arriving mid-stop must lose cleanly: no second Stop,
	// no phase disturbance, no second submission.
	if err := orc.ToggleRecording(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for concurrent toggle, got %v", err)
	}
	if got := rec.stops(); got != 1 {
		t.Errorf("expected one Stop call, got %d", got)
	}
	if orc.Phase() != PhaseAwaitingTranscription {
		t.Errorf("loser must not move the phase, got %v", orc.Phase())
	}
	if err := orc.SubmitText(context.Background(), "duplicate"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for text submit mid-stop, got %v", err)
	}

	close(rec.release)
	if err := <-done; err != nil {
		t.Fatalf("winning toggle failed: %v", err)
	}
	if orc.Phase() != PhaseIdle {
		t.Errorf("expected idle after winner completes, got %v", orc.Phase())
	}
	if got := backend.callsMatching("complete"); len(got) != 1 {
		t.Errorf("expected exactly one completion, calls: %v", backend.calls)
	}
	if tl.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", tl.Len())
	}
}

func TestSelectSessionReloadsHistory(t *testing.T) {
	backend := &fakeBackend{history: []transport.MessagePair{
		{HumanMessage: "q1", AIMessage: "a1"},
		{HumanMessage: "q2", AIMessage: "a2"},
	}}
	orc, store, tl := newTestOrchestrator(backend, nil)

	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	tl.Append("leftover", true)

	if err := orc.SelectSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	entries := tl.Entries()
	want := []timeline.Entry{
		{Text: "q1", IsUser: true},
		{Text: "a1", IsUser: false},
		{Text: "q2", IsUser: true},
		{Text: "a2", IsUser: false},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestSelectSessionHistoryFailure(t *testing.T) {
	backend := &fakeBackend{
		historyErr: &envelope.Fault{Message: "history unavailable", StatusCode: 503},
	}
	orc, store, tl := newTestOrchestrator(backend, nil)
	sess, _ := store.Create(context.Background())
	tl.Append("leftover", true)

	if err := orc.SelectSession(context.Background(), sess.ID); err == nil {
		t.Fatal("expected error")
	}
	if tl.Len() != 0 {
		t.Errorf("expected cleared timeline, got %d entries", tl.Len())
	}
	if tl.Fetching() {
		t.Error("fetching flag should drop after a failed reload")
	}
	if got := orc.Notice(); got != "history unavailable" {
		t.Errorf("notice = %q", got)
	}
}

func TestSelectUnknownSession(t *testing.T) {
	orc, _, _ := newTestOrchestrator(&fakeBackend{}, nil)
	if err := orc.SelectSession(context.Background(), "ghost"); !errors.Is(err, chats.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSelectedSessionClearsTimeline(t *testing.T) {
	backend := &fakeBackend{}
	orc, store, tl := newTestOrchestrator(backend, nil)
	sess, _ := store.Create(context.Background())
	tl.Append("q", true)

	if err := orc.DeleteSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if tl.Len() != 0 {
		t.Errorf("expected cleared timeline, got %d entries", tl.Len())
	}
	if store.SelectedID() != "" {
		t.Errorf("expected no selection, got %q", store.SelectedID())
	}
}

func TestDeleteRollbackRefetchesHistory(t *testing.T) {
	backend := &fakeBackend{
		deleteErr: &envelope.Fault{Message: "cannot delete", StatusCode: 500},
		history:   []transport.MessagePair{{HumanMessage: "q", AIMessage: "a"}},
	}
	orc, store, tl := newTestOrchestrator(backend, nil)
	sess, _ := store.Create(context.Background())
	tl.Append("q", true)
	tl.Append("a", false)

	if err := orc.DeleteSession(context.Background(), sess.ID); err == nil {
		t.Fatal("expected error")
	}
	// The session survives, stays selected, and its history is back.
	if store.SelectedID() != sess.ID {
		t.Errorf("expected selection restored, got %q", store.SelectedID())
	}
	if tl.Len() != 2 {
		t.Errorf("expected refetched history, got %d entries", tl.Len())
	}
	if got := backend.callsMatching("messages " + sess.ID); len(got) != 1 {
		t.Errorf("expected one history refetch, calls: %v", backend.calls)
	}
}

func TestNewSessionResetsTimeline(t *testing.T) {
	orc, store, tl := newTestOrchestrator(&fakeBackend{}, nil)
	tl.Append("old", true)

	sess, err := orc.NewSession(context.Background())
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if tl.Len() != 0 {
		t.Errorf("expected cleared timeline, got %d entries", tl.Len())
	}
	if store.SelectedID() != sess.ID {
		t.Errorf("expected new session selected, got %q", store.SelectedID())
	}
}

func TestModelSwitch(t *testing.T) {
	backend := &fakeBackend{completeReply: "ok"}
	orc, _, _ := newTestOrchestrator(backend, nil)

	orc.SetModel("mergestack-assistant")
	if err := orc.SubmitText(context.Background(), "hi"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := backend.callsMatching("complete mergestack-assistant"); len(got) != 1 {
		t.Errorf("expected completion with switched model, calls: %v", backend.calls)
	}
}
