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
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/loqalabs/loqa-todo/internal/voice"
)

const (
	maxLogLines = 200
	shownLog    = 8
	sayPrefix   = "/say "
)

var sortCycle = []todo.SortMode{todo.SortCreated, todo.SortPriority, todo.SortCategory, todo.SortDue}

// Controller is the part of the orchestrator the console drives
type Controller interface {
	SetListening(on bool)
	SubmitText(text string)
	ResolveDialog(resolution voice.Resolution)
	Refresh()
	SetSort(sort todo.SortMode)
	Toggle(id string)
	Delete(id, name string)
	ClearAll()
	ClearCompleted()
}

// Microphone simulates speech; *voice.ManualEngine implements it
type Microphone interface {
	Submit(text string) bool
	Active() (voice.Kind, bool)
}

// Model is the bubbletea model of the to-do console
type Model struct {
	ctrl  Controller
	mic   Microphone
	input textinput.Model

	state  voice.State
	dialog voice.Dialog
	tasks  []todo.Task
	sort   todo.SortMode
	cursor int
	log    []logLine

	width int
}

// NewModel creates the console model. mic may be nil when a real recognizer is in use.
func NewModel(ctrl Controller, mic Microphone) Model {
	ti := textinput.New()
	ti.Placeholder = "add buy milk, list tasks, /say hey todo ..."
	ti.CharLimit = 500
	ti.Prompt = "› "
	ti.Focus()

	return Model{
		ctrl:  ctrl,
		mic:   mic,
		input: ti,
		sort:  todo.SortCreated,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	ctrl := m.ctrl
	return tea.Batch(textinput.Blink, func() tea.Msg {
		ctrl.Refresh()
		return nil
	})
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case stateMsg:
		m.state = msg.state
		return m, nil

	case dialogMsg:
		m.dialog = msg.dialog
		return m, nil

	case tasksMsg:
		m.tasks = msg.tasks
		m.sort = msg.sort
		if m.cursor >= len(m.tasks) {
			m.cursor = max(len(m.tasks)-1, 0)
		}
		return m, nil

	case statusMsg:
		kind := logStatus
		if msg.isError {
			kind = logError
		}
		m.appendLog(kind, msg.text)
		return m, nil

	case spokenMsg:
		m.appendLog(logSpoken, msg.text)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.dialog.Open && m.input.Value() == "" {
		switch key {
		case "y":
			m.ctrl.ResolveDialog(voice.ResolveAccept)
			return m, nil
		case "n":
			m.ctrl.ResolveDialog(voice.ResolveDecline)
			return m, nil
		}
	}

	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.dialog.Open {
			m.ctrl.ResolveDialog(voice.ResolveDismiss)
		} else {
			m.input.Reset()
		}
		return m, nil
	case "enter":
		m.submit()
		return m, nil
	case "ctrl+l":
		m.ctrl.SetListening(!m.state.Listening)
		return m, nil
	case "ctrl+r":
		m.ctrl.Refresh()
		return m, nil
	case "ctrl+s":
		m.ctrl.SetSort(nextSort(m.sort))
		return m, nil
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
		return m, nil
	case "ctrl+t":
		if task, ok := m.selected(); ok {
			m.ctrl.Toggle(task.ID)
		}
		return m, nil
	case "ctrl+d":
		if task, ok := m.selected(); ok {
			m.ctrl.Delete(task.ID, task.Name)
		}
		return m, nil
	case "ctrl+x":
		m.ctrl.ClearCompleted()
		return m, nil
	case "ctrl+k":
		m.ctrl.ClearAll()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line. "/say" lines and lines typed while a command or
// confirmation capture is waiting go to the microphone; the rest are typed commands.
func (m *Model) submit() {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return
	}

	if m.mic != nil {
		spoken, forced := strings.CutPrefix(text, sayPrefix)
		kind, active := m.mic.Active()
		if forced || (active && kind != voice.KindWake) {
			if m.mic.Submit(spoken) {
				m.appendLog(logTyped, "🎤 "+spoken)
				return
			}
			if forced {
				m.appendLog(logError, "Nothing is listening right now.")
				return
			}
		}
	}

	m.appendLog(logTyped, "› "+text)
	m.ctrl.SubmitText(text)
}

func (m Model) selected() (todo.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return todo.Task{}, false
	}
	return m.tasks[m.cursor], true
}

func (m *Model) appendLog(kind logKind, text string) {
	m.log = append(m.log, logLine{kind: kind, text: text})
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func nextSort(current todo.SortMode) todo.SortMode {
	for i, mode := range sortCycle {
		if mode == current {
			return sortCycle[(i+1)%len(sortCycle)]
		}
	}
	return sortCycle[0]
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Loqa To-Do"))
	b.WriteString("  ")
	if m.state.Listening {
		b.WriteString(listeningStyle.Render("● listening"))
	} else {
		b.WriteString(mutedStyle.Render("○ voice off"))
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s  sort: %s", m.state.Mode, m.sort)))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(mutedStyle.Render("  No tasks."))
		b.WriteString("\n")
	}
	for i, task := range m.tasks {
		line := renderTask(task)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.dialog.Open {
		accept, decline := "Confirm", "Cancel"
		if len(m.dialog.Options) == 2 {
			accept, decline = m.dialog.Options[0], m.dialog.Options[1]
		}
		b.WriteString(dialogStyle.Render(m.dialog.Message + "\n" + mutedStyle.Render("[y] "+accept+"  [n] "+decline+"  [esc] dismiss")))
		b.WriteString("\n")
	}

	start := max(len(m.log)-shownLog, 0)
	for _, line := range m.log[start:] {
		b.WriteString(renderLog(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • ctrl+l voice • ↑/↓ select • ctrl+t done • ctrl+d delete • ctrl+s sort • ctrl+x clear done • ctrl+k clear all • ctrl+c quit"))
	return b.String()
}

func renderTask(task todo.Task) string {
	box := "[ ]"
	style := taskStyle
	if task.Done {
		box = "[x]"
		style = doneTaskStyle
	}

	var details []string
	if word := todo.PriorityWord(task.Priority); word != "" {
		details = append(details, word)
	}
	if task.Category != "" {
		details = append(details, task.Category)
	}
	if task.DueDate != nil && !task.DueDate.IsZero() {
		details = append(details, "due "+task.DueDate.Format("Jan 2"))
	}

	line := fmt.Sprintf("  %s %s", box, style.Render(task.Name))
	if len(details) > 0 {
		line += " " + mutedStyle.Render("("+strings.Join(details, ", ")+")")
	}
	return line
}

func renderLog(line logLine) string {
	switch line.kind {
	case logError:
		return errorStyle.Render("! " + line.text)
	case logSpoken:
		return spokenStyle.Render("🔊 " + line.text)
	case logTyped:
		return typedStyle.Render(line.text)
	default:
		return mutedStyle.Render("· " + line.text)
	}
}
