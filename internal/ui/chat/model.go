// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/chats"
	"github.com/mergestack/chatbot-tui/internal/config"
	"github.com/mergestack/chatbot-tui/internal/orchestrator"
	"github.com/mergestack/chatbot-tui/internal/timeline"
	"github.com/mergestack/chatbot-tui/internal/ui/styles"
)

// levelTickRate matches the engine's sampler granularity.
const levelTickRate = 50 * time.Millisecond

// Model is the Bubble Tea model for the chat view. All chat semantics live
// in the orchestrator; the model holds presentation state only.
type Model struct {
	orc   *orchestrator.Orchestrator
	store *chats.Store
	tl    *timeline.Timeline
	cfg   *config.Config
	log   *zap.Logger

	theme  *styles.Theme
	keyMap KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	notice string
}

// New builds the chat view.
func New(orc *orchestrator.Orchestrator, store *chats.Store, tl *timeline.Timeline, cfg *config.Config, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		orc:     orc,
		store:   store,
		tl:      tl,
		cfg:     cfg,
		log:     log,
		theme:   styles.NewTheme(cfg.DarkMode()),
		keyMap:  DefaultKeyMap(),
		input:   input,
		spinner: sp,
	}
}

// Init loads the session list and starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadSessions())
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) loadSessions() tea.Cmd {
	return func() tea.Msg {
		return sessionsLoadedMsg{err: m.store.Load(context.Background())}
	}
}

func (m Model) submitText(text string) tea.Cmd {
	return func() tea.Msg {
		return submissionDoneMsg{err: m.orc.SubmitText(context.Background(), text)}
	}
}

func (m Model) toggleRecording() tea.Cmd {
	return func() tea.Msg {
		return recordingToggledMsg{err: m.orc.ToggleRecording(context.Background())}
	}
}

func (m Model) selectSession(id string) tea.Cmd {
	return func() tea.Msg {
		return historyLoadedMsg{sessionID: id, err: m.orc.SelectSession(context.Background(), id)}
	}
}

func (m Model) newSession() tea.Cmd {
	return func() tea.Msg {
		sess, err := m.orc.NewSession(context.Background())
		return sessionCreatedMsg{session: sess, err: err}
	}
}

func (m Model) deleteSession(id string) tea.Cmd {
	return func() tea.Msg {
		return sessionDeletedMsg{sessionID: id, err: m.orc.DeleteSession(context.Background(), id)}
	}
}

func levelTick() tea.Cmd {
	return tea.Tick(levelTickRate, func(time.Time) tea.Msg {
		return levelTickMsg{}
	})
}
