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
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/loqalabs/loqa-todo/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	calls []string
}

func (f *fakeController) SetListening(on bool) {
	if on {
		f.calls = append(f.calls, "listen:on")
	} else {
		f.calls = append(f.calls, "listen:off")
	}
}
func (f *fakeController) SubmitText(text string) { f.calls = append(f.calls, "text:"+text) }
func (f *fakeController) ResolveDialog(r voice.Resolution) {
	f.calls = append(f.calls, "resolve:"+r.String())
}
func (f *fakeController) Refresh()                { f.calls = append(f.calls, "refresh") }
func (f *fakeController) SetSort(s todo.SortMode) { f.calls = append(f.calls, "sort:"+string(s)) }
func (f *fakeController) Toggle(id string)        { f.calls = append(f.calls, "toggle:"+id) }
func (f *fakeController) Delete(id, name string)  { f.calls = append(f.calls, "delete:"+id+":"+name) }
func (f *fakeController) ClearAll()               { f.calls = append(f.calls, "clear") }
func (f *fakeController) ClearCompleted()         { f.calls = append(f.calls, "clear-completed") }

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func typeLine(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	return press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

var sampleTasks = []todo.Task{
	{ID: "1", Name: "buy milk", Priority: todo.PriorityHigh, Category: "shopping"},
	{ID: "2", Name: "call mom", Done: true, Priority: todo.PriorityLow},
}

func TestTypedCommandGoesToController(t *testing.T) {
	ctrl := &fakeController{}
	m := typeLine(t, NewModel(ctrl, nil), "  add buy milk ")

	assert.Equal(t, []string{"text:add buy milk"}, ctrl.calls)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.log, 1)
	assert.Equal(t, "› add buy milk", m.log[0].text)

	typeLine(t, m, "   ")
	assert.Len(t, ctrl.calls, 1)
}

func TestSayFeedsMicrophone(t *testing.T) {
	ctrl := &fakeController{}
	mic := voice.NewManualEngine()
	sink := &countingSink{}
	require.NoError(t, mic.Begin("w1", voice.Options{Kind: voice.KindWake, Continuous: true}, sink))

	m := NewModel(ctrl, mic)
	m = typeLine(t, m, "add milk")
	assert.Equal(t, []string{"text:add milk"}, ctrl.calls, "wake capture does not swallow typed commands")

	m = typeLine(t, m, "/say hey todo")
	assert.Equal(t, []string{"hey todo"}, sink.results)
	assert.Len(t, ctrl.calls, 1)
	assert.Equal(t, "🎤 hey todo", m.log[len(m.log)-1].text)
}

func TestPlainTextAnswersCommandCapture(t *testing.T) {
	ctrl := &fakeController{}
	mic := voice.NewManualEngine()
	sink := &countingSink{}
	require.NoError(t, mic.Begin("c1", voice.Options{Kind: voice.KindCommand}, sink))

	typeLine(t, NewModel(ctrl, mic), "list tasks")
	assert.Equal(t, []string{"list tasks"}, sink.results)
	assert.Equal(t, 1, sink.ends)
	assert.Empty(t, ctrl.calls)
}

func TestSayWithoutCaptureReportsError(t *testing.T) {
	ctrl := &fakeController{}
	m := typeLine(t, NewModel(ctrl, voice.NewManualEngine()), "/say hello")

	assert.Empty(t, ctrl.calls)
	require.Len(t, m.log, 1)
	assert.Equal(t, logError, m.log[0].kind)
}

func TestDialogShortcuts(t *testing.T) {
	ctrl := &fakeController{}
	m := press(t, NewModel(ctrl, nil), dialogMsg{dialog: voice.Dialog{Open: true, Message: "Delete all tasks?", Options: []string{"Confirm", "Cancel"}}})

	assert.Contains(t, m.View(), "Delete all tasks?")

	m = press(t, m, keyRunes("y"), keyRunes("n"), tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, []string{"resolve:accept", "resolve:decline", "resolve:dismiss"}, ctrl.calls)

	// With text in the input the keys type instead.
	m.input.SetValue("can")
	m = press(t, m, keyRunes("y"))
	assert.Equal(t, "cany", m.input.Value())
	assert.Len(t, ctrl.calls, 3)
}

func TestTaskKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := press(t, NewModel(ctrl, nil), tasksMsg{tasks: sampleTasks, sort: todo.SortPriority})

	m = press(t, m,
		tea.KeyMsg{Type: tea.KeyCtrlT},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyCtrlD},
		tea.KeyMsg{Type: tea.KeyUp},
		tea.KeyMsg{Type: tea.KeyCtrlS},
		tea.KeyMsg{Type: tea.KeyCtrlX},
		tea.KeyMsg{Type: tea.KeyCtrlK},
		tea.KeyMsg{Type: tea.KeyCtrlR},
	)

	assert.Equal(t, []string{
		"toggle:1",
		"delete:2:call mom",
		"sort:category",
		"clear-completed",
		"clear",
		"refresh",
	}, ctrl.calls)
	assert.Equal(t, 0, m.cursor)
}

func TestListeningToggleFollowsState(t *testing.T) {
	ctrl := &fakeController{}
	m := press(t, NewModel(ctrl, nil), tea.KeyMsg{Type: tea.KeyCtrlL})
	m = press(t, m, stateMsg{state: voice.State{Listening: true, Mode: voice.ModeAwaitingWake}})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})

	assert.Equal(t, []string{"listen:on", "listen:off"}, ctrl.calls)
	assert.Contains(t, m.View(), "listening")
}

func TestCursorClampedWhenTasksShrink(t *testing.T) {
	m := press(t, NewModel(&fakeController{}, nil), tasksMsg{tasks: sampleTasks})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)

	m = press(t, m, tasksMsg{tasks: sampleTasks[:1]})
	assert.Equal(t, 0, m.cursor)

	m = press(t, m, tasksMsg{})
	_, ok := m.selected()
	assert.False(t, ok)
}

func TestViewRendersTasksAndLog(t *testing.T) {
	m := press(t, NewModel(&fakeController{}, nil),
		tasksMsg{tasks: sampleTasks, sort: todo.SortPriority},
		statusMsg{text: "Added buy milk"},
		statusMsg{text: "Backend down", isError: true},
		spokenMsg{text: "Added buy milk."},
	)

	view := m.View()
	assert.Contains(t, view, "buy milk")
	assert.Contains(t, view, "high, shopping")
	assert.Contains(t, view, "[x]")
	assert.Contains(t, view, "sort: priority")
	assert.Contains(t, view, "Backend down")
	assert.Contains(t, view, "🔊 Added buy milk.")
}

func TestLogIsBounded(t *testing.T) {
	m := NewModel(&fakeController{}, nil)
	for i := 0; i < maxLogLines+25; i++ {
		m.appendLog(logStatus, "line")
	}
	assert.Len(t, m.log, maxLogLines)
	assert.Equal(t, shownLog, strings.Count(m.View(), "· line"))
}

func TestNextSortCycles(t *testing.T) {
	assert.Equal(t, todo.SortPriority, nextSort(todo.SortCreated))
	assert.Equal(t, todo.SortCreated, nextSort(todo.SortDue))
	assert.Equal(t, todo.SortCreated, nextSort("bogus"))
}

type countingSink struct {
	results []string
	ends    int
}

func (s *countingSink) Result(_, transcript string)   { s.results = append(s.results, transcript) }
func (s *countingSink) Error(string, voice.ErrorCode) {}
func (s *countingSink) End(string)                    { s.ends++ }
