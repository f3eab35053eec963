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

package voice

// Mode is the orchestrator's position in the wake/command cycle
type Mode int

const (
	ModeIdle Mode = iota
	ModeAwaitingWake
	ModePrompting
	ModeAwaitingCommand
	ModeDispatching
	ModeInDialog
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeAwaitingWake:
		return "awaiting_wake"
	case ModePrompting:
		return "prompting"
	case ModeAwaitingCommand:
		return "awaiting_command"
	case ModeDispatching:
		return "dispatching"
	case ModeInDialog:
		return "in_dialog"
	default:
		return "unknown"
	}
}

// State is the single session state value owned by the orchestrator loop
type State struct {
	Listening  bool
	Mode       Mode
	WakeActive bool // wake session is capturing
	DialogOpen bool
}

// Dialog is the presentation view of the confirmation sub-dialog
type Dialog struct {
	Open    bool
	Message string
	Options []string
}

// Resolution is how an open confirmation dialog was answered
type Resolution int

const (
	ResolveAccept Resolution = iota
	ResolveDecline
	ResolveDismiss
)

func (r Resolution) String() string {
	switch r {
	case ResolveAccept:
		return "accept"
	case ResolveDecline:
		return "decline"
	case ResolveDismiss:
		return "dismiss"
	default:
		return "unknown"
	}
}
