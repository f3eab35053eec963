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

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/loqalabs/loqa-todo/internal/voice"
)

// Sender accepts messages for a running program; *tea.Program implements it
type Sender interface {
	Send(msg tea.Msg)
}

var (
	_ voice.Observer = (*Relay)(nil)
	_ voice.Speaker  = (*Relay)(nil)
)

// Relay forwards orchestrator notifications to the console. Messages sent
// before a program is attached are buffered.
type Relay struct {
	mu      sync.Mutex
	sender  Sender
	pending []tea.Msg
	speaker voice.Speaker
}

// NewRelay creates a relay. Utterances are echoed on screen and then handed to
// speaker when it is not nil.
func NewRelay(speaker voice.Speaker) *Relay {
	return &Relay{speaker: speaker}
}

// Attach starts delivering to s, flushing buffered messages first
func (r *Relay) Attach(s Sender) {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.sender = s
	r.mu.Unlock()

	for _, msg := range pending {
		s.Send(msg)
	}
}

func (r *Relay) send(msg tea.Msg) {
	r.mu.Lock()
	if r.sender == nil {
		r.pending = append(r.pending, msg)
		r.mu.Unlock()
		return
	}
	s := r.sender
	r.mu.Unlock()
	s.Send(msg)
}

func (r *Relay) StateChanged(state voice.State) { r.send(stateMsg{state: state}) }

func (r *Relay) DialogChanged(dialog voice.Dialog) { r.send(dialogMsg{dialog: dialog}) }

func (r *Relay) TasksChanged(tasks []todo.Task, sort todo.SortMode) {
	r.send(tasksMsg{tasks: append([]todo.Task(nil), tasks...), sort: sort})
}

func (r *Relay) Status(message string, isError bool) {
	r.send(statusMsg{text: message, isError: isError})
}

// Speak shows the utterance and plays it on the wrapped speaker
func (r *Relay) Speak(ctx context.Context, text string) error {
	r.send(spokenMsg{text: text})
	if r.speaker == nil {
		return nil
	}
	return r.speaker.Speak(ctx, text)
}
