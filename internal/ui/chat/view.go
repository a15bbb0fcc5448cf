// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/mergestack/chatbot-tui/internal/util"
)

const (
	sidebarWidth = 24
	inputHeight  = 2
	statusHeight = 1

	userLabel      = "You"
	assistantLabel = "Assistant"
)

func newViewport(width, height int) viewport.Model {
	if width < 1 {
		width = 1
	}
	vp := viewport.New(width, height)
	return vp
}

// View renders the full chat screen: session sidebar, timeline, input row,
// and status bar.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderSidebar(),
		m.theme.Main.Render(m.viewport.View()),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		content,
		m.renderInput(),
		m.renderStatus(),
	)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.theme.SidebarTitle.Render("Chats"))
	b.WriteString("\n\n")

	selected := m.store.SelectedID()
	for _, sess := range m.store.Sessions() {
		title := util.TruncateWidth(sess.DisplayTitle(), sidebarWidth-3)
		if sess.ID == selected {
			b.WriteString(m.theme.SessionSelected.Render("> " + title))
		} else {
			b.WriteString(m.theme.SessionItem.Render("  " + title))
		}
		b.WriteString("\n")
	}
	if m.store.Len() == 0 {
		b.WriteString(m.theme.SessionItem.Render("  (no chats yet)"))
	}

	height := m.height - inputHeight - statusHeight
	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(height).
		Render(b.String())
}

// =============================================================================
// TIMELINE
// =============================================================================

func (m Model) renderTimeline() string {
	if m.tl.Fetching() {
		return m.theme.AssistantBubble.Render(m.spinner.View() + " Loading history...")
	}

	entries := m.tl.Entries()
	if len(entries) == 0 {
		return m.theme.AssistantBubble.Render("Start the conversation.")
	}

	width := m.viewport.Width
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		if entry.IsUser {
			b.WriteString(m.theme.UserLabel.Render(userLabel))
			b.WriteString("\n")
			b.WriteString(m.theme.UserBubble.Width(width).Render(entry.Text))
		} else {
			b.WriteString(m.theme.AssistantLabel.Render(assistantLabel))
			b.WriteString("\n")
			b.WriteString(m.theme.AssistantBubble.Width(width).Render(entry.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// INPUT ROW
// =============================================================================

func (m Model) renderInput() string {
	var row string
	switch {
	case m.orc.Recording():
		row = m.theme.Recording.Render("● REC ") + m.renderLevels()
	case m.orc.UserLoading():
		row = m.spinner.View() + " Transcribing..."
	case m.orc.Loading():
		row = m.spinner.View() + " Thinking..."
	default:
		row = m.theme.InputPrompt.Render("> ") + m.input.View()
	}
	return m.theme.InputContainer.Width(m.width).Render(row)
}

// renderLevels draws the 3-band amplitude meter as stacked bars.
func (m Model) renderLevels() string {
	const bars = 8
	levels := m.orc.Levels()
	parts := make([]string, 0, 3)
	for _, level := range levels {
		filled := int(level * bars)
		if filled > bars {
			filled = bars
		}
		parts = append(parts, strings.Repeat("█", filled)+strings.Repeat("░", bars-filled))
	}
	return m.theme.LevelMeter.Render(strings.Join(parts, " "))
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatus() string {
	if m.notice != "" {
		return m.theme.Notice.Render(" " + m.notice)
	}

	left := m.theme.StatusModel.Render(m.orc.Model())
	help := strings.Join([]string{
		m.shortcut("enter", "send"),
		m.shortcut("ctrl+r", "record"),
		m.shortcut("ctrl+n", "new"),
		m.shortcut("ctrl+d", "delete"),
		m.shortcut("ctrl+p", "model"),
		m.shortcut("ctrl+t", "theme"),
	}, "  ")

	return m.theme.StatusBar.Render(" " + left + "  " + help)
}

func (m Model) shortcut(keyName, desc string) string {
	return m.theme.ShortcutKey.Render(keyName) + m.theme.ShortcutDesc.Render(" "+desc)
}
