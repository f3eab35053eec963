/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package console

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#8B5CF6")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#F8FAFC")
	colorBgSel   = lipgloss.Color("#3B0764")
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)

	listeningStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	spokenStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Italic(true)
	typedStyle     = lipgloss.NewStyle().Foreground(colorText)

	taskStyle     = lipgloss.NewStyle().Foreground(colorText)
	doneTaskStyle = lipgloss.NewStyle().Foreground(colorMuted).Strikethrough(true)
	selectedStyle = lipgloss.NewStyle().Background(colorBgSel)

	dialogStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorWarning).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)
