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

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/loqalabs/loqa-todo/internal/todo"
)

// timeline records engine and speaker activity in the order it happened
type timeline struct {
	mu      sync.Mutex
	entries []string
}

func (l *timeline) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *timeline) index(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

type fakeCapture struct {
	id   string
	opts Options
	sink Sink
}

// fakeEngine ends aborted captures asynchronously, like a remote device
type fakeEngine struct {
	mu        sync.Mutex
	active    map[string]fakeCapture
	begins    map[Kind]int
	aborts    int
	maxActive int
	failWith  error
	log       *timeline
}

func newFakeEngine(log *timeline) *fakeEngine {
	return &fakeEngine{
		active: make(map[string]fakeCapture),
		begins: make(map[Kind]int),
		log:    log,
	}
}

func (e *fakeEngine) Begin(captureID string, opts Options, sink Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failWith != nil {
		return e.failWith
	}
	e.active[captureID] = fakeCapture{id: captureID, opts: opts, sink: sink}
	e.begins[opts.Kind]++
	if len(e.active) > e.maxActive {
		e.maxActive = len(e.active)
	}
	if e.log != nil {
		e.log.add("begin:%s", opts.Kind)
	}
	return nil
}

func (e *fakeEngine) Abort(captureID string) {
	e.mu.Lock()
	capture, ok := e.active[captureID]
	delete(e.active, captureID)
	e.aborts++
	e.mu.Unlock()

	if ok {
		go func() {
			capture.sink.Error(captureID, ErrorAborted)
			capture.sink.End(captureID)
		}()
	}
}

// current returns the kind of the single active capture
func (e *fakeEngine) current() (Kind, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, capture := range e.active {
		return capture.opts.Kind, true
	}
	return "", false
}

func (e *fakeEngine) activeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *fakeEngine) beginCount(kind Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begins[kind]
}

func (e *fakeEngine) peak() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxActive
}

// hear delivers a transcript to the active capture of kind; one-shot captures end afterwards
func (e *fakeEngine) hear(kind Kind, transcript string) bool {
	e.mu.Lock()
	var capture fakeCapture
	found := false
	for id, c := range e.active {
		if c.opts.Kind == kind {
			capture, found = c, true
			if !c.opts.Continuous {
				delete(e.active, id)
			}
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return false
	}
	capture.sink.Result(capture.id, transcript)
	if !capture.opts.Continuous {
		capture.sink.End(capture.id)
	}
	return true
}

// endOnOwn ends the active capture of kind as a silence timeout would
func (e *fakeEngine) endOnOwn(kind Kind, code ErrorCode) bool {
	e.mu.Lock()
	var capture fakeCapture
	found := false
	for id, c := range e.active {
		if c.opts.Kind == kind {
			capture, found = c, true
			delete(e.active, id)
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return false
	}
	if code != "" {
		capture.sink.Error(capture.id, code)
	}
	capture.sink.End(capture.id)
	return true
}

// fakeSpeaker records utterances; while gate is open-ended it blocks until released
type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	gate   chan struct{}
	log    *timeline
	onText func(text string)
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	gate, onText := s.gate, s.onText
	s.mu.Unlock()

	if onText != nil {
		onText(text)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.log != nil {
		s.log.add("spoke:%s", text)
	}
	return nil
}

func (s *fakeSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *fakeSpeaker) said(text string) bool {
	for _, spoken := range s.texts() {
		if spoken == text {
			return true
		}
	}
	return false
}

func (s *fakeSpeaker) saidContaining(fragment string) bool {
	for _, spoken := range s.texts() {
		if strings.Contains(spoken, fragment) {
			return true
		}
	}
	return false
}

type fakeBackend struct {
	mu     sync.Mutex
	calls  []string
	tasks  []todo.Task
	events []*events.VoiceEvent
	addErr error
	// addGate, when set, holds Add until it is closed
	addGate chan struct{}
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) called(call string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (b *fakeBackend) recordedEvents() []*events.VoiceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*events.VoiceEvent(nil), b.events...)
}

func (b *fakeBackend) ListTasks(_ context.Context, sort todo.SortMode, filter todo.DoneFilter) ([]todo.Task, error) {
	b.record(fmt.Sprintf("list:%s:%s", sort, filter))
	b.mu.Lock()
	defer b.mu.Unlock()

	tasks := []todo.Task{}
	for _, task := range b.tasks {
		switch {
		case filter == todo.FilterPending && task.Done:
		case filter == todo.FilterCompleted && !task.Done:
		default:
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (b *fakeBackend) Add(ctx context.Context, text string) (*todo.Reply, error) {
	b.record("add:" + text)
	if b.addGate != nil {
		select {
		case <-b.addGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.addErr != nil {
		return nil, b.addErr
	}
	return &todo.Reply{Message: fmt.Sprintf("Task '%s' added with medium priority", text)}, nil
}

func (b *fakeBackend) Toggle(_ context.Context, id string) (*todo.Reply, error) {
	b.record("toggle:" + id)
	return &todo.Reply{}, nil
}

func (b *fakeBackend) Delete(_ context.Context, id string) (*todo.Reply, error) {
	b.record("delete:" + id)
	return &todo.Reply{Message: "Deleted"}, nil
}

func (b *fakeBackend) DeleteByName(_ context.Context, name string) (*todo.Reply, error) {
	b.record("delete-by-name:" + name)
	return &todo.Reply{Message: "Deleted " + name}, nil
}

func (b *fakeBackend) MarkByName(_ context.Context, name string) (*todo.Reply, error) {
	b.record("mark-by-name:" + name)
	return &todo.Reply{Message: fmt.Sprintf("Marked %s as done", name)}, nil
}

func (b *fakeBackend) ClearAll(context.Context) (*todo.Reply, error) {
	b.record("clear")
	return &todo.Reply{Message: "All tasks cleared"}, nil
}

func (b *fakeBackend) ClearCompleted(context.Context) (*todo.Reply, error) {
	b.record("clear-completed")
	return &todo.Reply{Message: "Completed tasks cleared"}, nil
}

func (b *fakeBackend) Update(_ context.Context, update todo.TaskUpdate) (*todo.Reply, error) {
	b.record("update:" + update.ID)
	return &todo.Reply{Message: "Updated"}, nil
}

func (b *fakeBackend) RecordVoiceEvent(_ context.Context, event *events.VoiceEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	dialogs  []Dialog
	statuses []string
	errors   []string
	tasks    [][]todo.Task
}

func (r *recordingObserver) StateChanged(State) {}

func (r *recordingObserver) DialogChanged(dialog Dialog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialogs = append(r.dialogs, dialog)
}

func (r *recordingObserver) TasksChanged(tasks []todo.Task, _ todo.SortMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, tasks)
}

func (r *recordingObserver) Status(message string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if isError {
		r.errors = append(r.errors, message)
		return
	}
	r.statuses = append(r.statuses, message)
}

func (r *recordingObserver) lastDialog() Dialog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dialogs) == 0 {
		return Dialog{}
	}
	return r.dialogs[len(r.dialogs)-1]
}

func (r *recordingObserver) errorMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recordingObserver) taskUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
