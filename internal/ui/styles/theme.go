// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for chatbot-tui.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application, in a dark and a
// light variant keyed off the persisted dark-mode flag.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	App     lipgloss.Style
	Sidebar lipgloss.Style
	Main    lipgloss.Style

	// ==========================================================================
	// SESSION LIST
	// ==========================================================================

	SessionItem     lipgloss.Style
	SessionSelected lipgloss.Style
	SidebarTitle    lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	UserLabel       lipgloss.Style
	AssistantLabel  lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	StatusBar      lipgloss.Style
	StatusModel    lipgloss.Style
	Notice         lipgloss.Style
	Recording      lipgloss.Style
	LevelMeter     lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style
}

// palette is the small set of colors a theme variant is built from.
type palette struct {
	accent    lipgloss.Color
	secondary lipgloss.Color
	text      lipgloss.Color
	dim       lipgloss.Color
	border    lipgloss.Color
	danger    lipgloss.Color
	userFg    lipgloss.Color
}

var darkPalette = palette{
	accent:    lipgloss.Color("86"),  // cyan
	secondary: lipgloss.Color("212"), // pink
	text:      lipgloss.Color("252"),
	dim:       lipgloss.Color("241"),
	border:    lipgloss.Color("238"),
	danger:    lipgloss.Color("203"),
	userFg:    lipgloss.Color("117"),
}

var lightPalette = palette{
	accent:    lipgloss.Color("30"),
	secondary: lipgloss.Color("162"),
	text:      lipgloss.Color("235"),
	dim:       lipgloss.Color("245"),
	border:    lipgloss.Color("250"),
	danger:    lipgloss.Color("160"),
	userFg:    lipgloss.Color("25"),
}

// NewTheme builds the theme for the requested variant.
func NewTheme(dark bool) *Theme {
	p := lightPalette
	if dark {
		p = darkPalette
	}

	t := &Theme{
		IsDark:       dark,
		ColorProfile: termenv.ColorProfile(),
	}

	t.App = lipgloss.NewStyle()
	t.Sidebar = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(p.border).
		PaddingRight(1)
	t.Main = lipgloss.NewStyle().PaddingLeft(1)

	t.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(p.accent)
	t.SessionItem = lipgloss.NewStyle().Foreground(p.dim)
	t.SessionSelected = lipgloss.NewStyle().Bold(true).Foreground(p.accent)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(p.userFg)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(p.secondary)
	t.UserBubble = lipgloss.NewStyle().Foreground(p.text)
	t.AssistantBubble = lipgloss.NewStyle().Foreground(p.text)

	t.InputContainer = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(p.border)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(p.accent)

	t.StatusBar = lipgloss.NewStyle().Foreground(p.dim)
	t.StatusModel = lipgloss.NewStyle().Bold(true).Foreground(p.secondary)
	t.Notice = lipgloss.NewStyle().Foreground(p.danger)
	t.Recording = lipgloss.NewStyle().Bold(true).Foreground(p.danger)
	t.LevelMeter = lipgloss.NewStyle().Foreground(p.accent)
	t.ShortcutKey = lipgloss.NewStyle().Bold(true).Foreground(p.text)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(p.dim)

	return t
}
