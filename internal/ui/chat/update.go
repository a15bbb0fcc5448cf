// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/orchestrator"
	"github.com/mergestack/chatbot-tui/internal/ui/styles"
)

// Update handles all incoming messages for the chat view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionsLoadedMsg:
		if msg.err != nil {
			m.notice = "Could not load your chats."
			m.log.Warn("session load failed", zap.Error(msg.err))
		}
		m.syncTimeline()
		return m, nil

	case submissionDoneMsg:
		m.drainNotice()
		m.syncTimeline()
		return m, nil

	case recordingToggledMsg:
		if msg.err != nil {
			m.drainNotice()
			if m.notice == "" {
				m.notice = "Recording is unavailable."
			}
		}
		m.syncTimeline()
		if m.orc.Recording() {
			return m, levelTick()
		}
		return m, nil

	case levelTickMsg:
		if !m.orc.Recording() {
			return m, nil
		}
		return m, levelTick()

	case historyLoadedMsg:
		m.drainNotice()
		m.syncTimeline()
		return m, nil

	case sessionCreatedMsg:
		if msg.err != nil {
			m.notice = "Could not create a chat."
			m.log.Warn("session create failed", zap.Error(msg.err))
		}
		m.syncTimeline()
		return m, nil

	case sessionDeletedMsg:
		if msg.err != nil {
			m.notice = "Could not delete the chat."
			m.log.Warn("session delete failed",
				zap.String("session", msg.sessionID), zap.Error(msg.err))
		}
		m.syncTimeline()
		return m, nil

	default:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if m.tl.Fetching() {
			// Keep the loading indicator spinning while history is in flight.
			m.syncTimeline()
		}
		return m, tea.Batch(cmds...)
	}
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	contentHeight := msg.Height - inputHeight - statusHeight
	if contentHeight < 1 {
		contentHeight = 1
	}
	if !m.ready {
		m.viewport = newViewport(msg.Width-sidebarWidth-1, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width - sidebarWidth - 1
		m.viewport.Height = contentHeight
	}
	m.input.Width = msg.Width - 6
	m.syncTimeline()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Submit):
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.orc.Phase() != orchestrator.PhaseIdle {
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		return m, m.submitText(text)

	case key.Matches(msg, m.keyMap.Record):
		m.notice = ""
		return m, m.toggleRecording()

	case key.Matches(msg, m.keyMap.NewSession):
		return m, m.newSession()

	case key.Matches(msg, m.keyMap.NextSession):
		if id := m.adjacentSession(1); id != "" {
			return m, m.selectSession(id)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.PrevSession):
		if id := m.adjacentSession(-1); id != "" {
			return m, m.selectSession(id)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Delete):
		if id := m.store.SelectedID(); id != "" {
			return m, m.deleteSession(id)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.CycleModel):
		m.cycleModel()
		return m, nil

	case key.Matches(msg, m.keyMap.ToggleDark):
		dark := !m.theme.IsDark
		m.theme = styles.NewTheme(dark)
		if err := m.cfg.SetDarkMode(dark); err != nil {
			m.log.Warn("dark mode persist failed", zap.Error(err))
		}
		return m, nil

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

// adjacentSession returns the session next to the selection in list order.
func (m *Model) adjacentSession(step int) string {
	sessions := m.store.Sessions()
	if len(sessions) == 0 {
		return ""
	}
	selected := m.store.SelectedID()
	if selected == "" {
		return sessions[0].ID
	}
	for i, s := range sessions {
		if s.ID == selected {
			next := i + step
			if next < 0 || next >= len(sessions) {
				return ""
			}
			return sessions[next].ID
		}
	}
	return sessions[0].ID
}

// cycleModel advances the active model through the configured list and
// persists the choice.
func (m *Model) cycleModel() {
	available := m.cfg.Models.Available
	if len(available) == 0 {
		return
	}
	current := m.orc.Model()
	next := available[0]
	for i, name := range available {
		if name == current {
			next = available[(i+1)%len(available)]
			break
		}
	}
	m.orc.SetModel(next)
	if err := m.cfg.SetLastModel(next); err != nil {
		m.log.Warn("model persist failed", zap.Error(err))
	}
}

// drainNotice pulls any pending out-of-band notice from the orchestrator.
func (m *Model) drainNotice() {
	if n := m.orc.Notice(); n != "" {
		m.notice = n
	}
}

// syncTimeline re-renders the viewport from the timeline and follows the
// tail.
func (m *Model) syncTimeline() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTimeline())
	m.viewport.GotoBottom()
}
