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
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-todo/internal/command"
	"github.com/loqalabs/loqa-todo/internal/config"
	"github.com/loqalabs/loqa-todo/internal/events"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"github.com/loqalabs/loqa-todo/internal/todo"
	"go.uber.org/zap"
)

// Fixed spoken feedback
const (
	promptMissingTask = "What task should I add?"
	replyUnrecognized = "Sorry, I didn't understand that command."
	replyUnavailable  = "Voice recognition is unavailable. Type your commands instead."
)

// Settings tunes the orchestrator
type Settings struct {
	DeviceID       string
	Locale         string
	WakePhrases    []string
	Accept         []string
	Decline        []string
	Prompt         string
	SettleDelay    time.Duration // after a command session ends, before wake listening resumes
	ResumeDelay    time.Duration // after a dialog closes, before wake listening resumes
	RestartDelay   time.Duration // between a capture ending on its own and the next start
	BackendTimeout time.Duration
}

// SettingsFromConfig maps the voice and backend configuration onto Settings
func SettingsFromConfig(voice config.VoiceConfig, backend config.BackendConfig) Settings {
	return Settings{
		DeviceID:       voice.DeviceID,
		Locale:         voice.Locale,
		WakePhrases:    voice.WakePhrases,
		Accept:         voice.Accept,
		Decline:        voice.Decline,
		Prompt:         voice.Prompt,
		SettleDelay:    voice.SettleDelay,
		ResumeDelay:    voice.ResumeDelay,
		RestartDelay:   voice.RestartDelay,
		BackendTimeout: backend.Timeout,
	}
}

type timerKind int

const (
	timerHold timerKind = iota
	timerSettle
	timerKinds
)

// Orchestrator is the voice state machine. Every stimulus is posted to one
// goroutine (Run) which owns all fields below the queue.
type Orchestrator struct {
	settings Settings
	engine   Engine
	speech   *Channel
	backend  Backend
	observer Observer
	wakes    *WakeMatcher
	replies  *ReplyMatcher

	queue      *eventQueue
	done       chan struct{}
	dispatches sync.WaitGroup
	ctx        context.Context

	state     State
	published State

	wake    *Session
	command *Session
	confirm *Session
	retired []*Session
	dialog  *pendingDialog

	commandArmed bool
	speaking     string // utterance that holds capture until it completes
	holding      bool
	epoch        uint64
	tokens       [timerKinds]uint64
	unavailable  bool

	sort  todo.SortMode
	tasks []todo.Task
}

// New creates an orchestrator; call Run to start it
func New(settings Settings, engine Engine, speaker Speaker, backend Backend, observer Observer) *Orchestrator {
	if settings.Prompt == "" {
		settings.Prompt = "Yes?"
	}
	if settings.BackendTimeout <= 0 {
		settings.BackendTimeout = 10 * time.Second
	}
	if len(settings.Accept) == 0 {
		settings.Accept = config.DefaultAccept
	}
	if len(settings.Decline) == 0 {
		settings.Decline = config.DefaultDecline
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if engine == nil {
		engine = NoEngine{}
	}

	o := &Orchestrator{
		settings: settings,
		engine:   engine,
		speech:   NewChannel(speaker),
		backend:  backend,
		observer: observer,
		wakes:    NewWakeMatcher(settings.WakePhrases),
		replies:  NewReplyMatcher(settings.Accept, settings.Decline),
		queue:    newEventQueue(),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		sort:     todo.SortCreated,
	}

	o.wake = NewSession(KindWake, true, settings.Locale, engine, SessionHandlers{
		OnResult: o.onWakeResult,
		OnError:  o.onWakeError,
		OnEnd:    o.onWakeEnd,
	}, o.post)
	o.command = NewSession(KindCommand, false, settings.Locale, engine, SessionHandlers{
		OnResult: o.onCommandResult,
		OnError:  o.onCommandError,
		OnEnd:    o.onCommandEnd,
	}, o.post)

	return o
}

// Run processes events until ctx is cancelled
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	logging.Sugar.Infow("🎙️ Voice orchestrator running",
		"device_id", o.settings.DeviceID,
		"locale", o.settings.Locale,
		"wake_variants", len(o.wakes.Variants()))

	defer close(o.done)

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-o.queue.ready():
			for _, fn := range o.queue.drain() {
				o.apply(fn)
			}
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.wake.Stop()
	o.command.Stop()
	if o.confirm != nil {
		o.confirm.Stop()
	}
	o.speech.Cancel()
	o.dispatches.Wait()
	logging.Sugar.Infow("🛑 Voice orchestrator stopped")
}

// apply runs one event, then starts any capture that has become possible
func (o *Orchestrator) apply(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("Recovered from panic in voice event", zap.Any("panic", r))
		}
		o.publish()
	}()

	fn()
	o.reconcile()
}

func (o *Orchestrator) post(fn func()) {
	o.queue.post(fn)
}

func (o *Orchestrator) publish() {
	o.state.WakeActive = o.wake.Running()
	if o.state == o.published {
		return
	}
	o.published = o.state
	o.observer.StateChanged(o.state)
}

func (o *Orchestrator) transition(to Mode) {
	from := o.state.Mode
	if from == to {
		return
	}
	o.state.Mode = to
	logging.LogVoiceTransition(from.String(), to.String(),
		zap.Bool("listening", o.state.Listening),
		zap.Bool("dialog_open", o.state.DialogOpen))
}

// capturing reports whether any session, including discarded ones that
// have not ended yet, still holds the recognizer
func (o *Orchestrator) capturing() bool {
	if o.wake.Running() || o.command.Running() || len(o.retired) > 0 {
		return true
	}
	return o.confirm != nil && o.confirm.Running()
}

// reconcile starts the capture the current state calls for once nothing
// else holds the recognizer or the speaker
func (o *Orchestrator) reconcile() {
	if o.unavailable || !o.state.Listening || o.holding || o.speaking != "" || o.capturing() {
		return
	}

	switch {
	case o.dialog != nil:
		if o.confirm != nil {
			o.startCapture(o.confirm)
		}
	case o.state.Mode == ModeAwaitingWake:
		o.startCapture(o.wake)
	case o.state.Mode == ModeAwaitingCommand && o.commandArmed:
		o.commandArmed = false
		if err := o.startCapture(o.command); err != nil && o.state.Mode == ModeAwaitingCommand {
			o.transition(ModeAwaitingWake)
		}
	}
}

func (o *Orchestrator) startCapture(s *Session) error {
	err := s.Start()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRecognitionUnavailable):
		o.unavailable = true
		logging.LogWarn("Speech recognition unavailable, text input only")
		o.observer.Status(replyUnavailable, true)
	default:
		o.hold(o.settings.RestartDelay)
	}
	return err
}

// hold blocks capture starts for d
func (o *Orchestrator) hold(d time.Duration) {
	o.holding = true
	o.after(timerHold, d, func() { o.holding = false })
}

// after runs fn on the loop once d has elapsed, unless another timer of the
// same kind is scheduled or the timers are cancelled first
func (o *Orchestrator) after(kind timerKind, d time.Duration, fn func()) {
	o.tokens[kind]++
	token := o.tokens[kind]
	time.AfterFunc(d, func() {
		o.post(func() {
			if o.tokens[kind] != token {
				return
			}
			fn()
		})
	})
}

func (o *Orchestrator) cancelTimer(kind timerKind) {
	o.tokens[kind]++
	if kind == timerHold {
		o.holding = false
	}
}

// say speaks text and holds capture until it completes. Every open capture
// is stopped first so the device does not hear itself; they restart once the
// utterance is over. An open command capture is re-armed so the user keeps
// the turn. then runs on the loop when the utterance completes, interrupted
// or not.
func (o *Orchestrator) say(text string, then func()) {
	if text == "" {
		if then != nil {
			then()
		}
		return
	}

	o.wake.Stop()
	if o.command.Running() {
		o.command.Stop()
		if o.state.Mode == ModeAwaitingCommand {
			o.commandArmed = true
		}
	}
	if o.confirm != nil {
		o.confirm.Stop()
	}

	u := o.speech.Speak(text, func(u *Utterance) {
		o.post(func() {
			if o.speaking == u.ID {
				o.speaking = ""
			}
			if then != nil {
				then()
			}
		})
	})
	o.speaking = u.ID
}

// SetListening turns voice capture on or off
func (o *Orchestrator) SetListening(on bool) {
	o.post(func() { o.setListening(on) })
}

func (o *Orchestrator) setListening(on bool) {
	if o.state.Listening == on {
		return
	}
	o.state.Listening = on
	o.epoch++
	o.cancelTimer(timerHold)
	o.cancelTimer(timerSettle)
	o.commandArmed = false

	if !on {
		o.wake.Stop()
		o.command.Stop()
		if o.confirm != nil {
			o.confirm.Stop()
		}
		o.transition(ModeIdle)
		o.observer.Status("Voice control off", false)
		return
	}

	if o.dialog != nil {
		o.transition(ModeInDialog)
	} else {
		o.transition(ModeAwaitingWake)
	}
	o.observer.Status("Listening for the wake phrase", false)
}

// SubmitText handles typed input: a command, or an answer while a dialog is open
func (o *Orchestrator) SubmitText(text string) {
	o.post(func() {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if o.dialog != nil {
			o.onConfirmReply(text)
			return
		}
		o.handleCommand(text, events.SessionText)
	})
}

// Snapshot returns the state after every previously posted event has been applied
func (o *Orchestrator) Snapshot() State {
	reply := make(chan State, 1)
	o.post(func() { reply <- o.state })

	select {
	case state := <-reply:
		return state
	case <-o.done:
		return o.state
	}
}

// Done is closed when Run has returned
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) onWakeResult(transcript string) {
	if o.state.Mode != ModeAwaitingWake || o.dialog != nil || !o.state.Listening {
		return
	}
	variant, ok := o.wakes.Match(transcript)
	if !ok {
		return
	}

	logging.Sugar.Infow("👂 Wake phrase detected",
		"variant", variant,
		"transcript", security.SanitizeLogInput(transcript))

	o.transition(ModePrompting)
	o.epoch++
	epoch := o.epoch
	o.wake.Stop()
	o.say(o.settings.Prompt, func() {
		if o.epoch != epoch || o.state.Mode != ModePrompting {
			return
		}
		o.commandArmed = true
		o.transition(ModeAwaitingCommand)
	})
}

func (o *Orchestrator) onWakeError(code ErrorCode) {
	switch code {
	case ErrorNoSpeech, ErrorAborted:
		return
	default:
		logging.LogWarn("Wake session error", zap.String("code", string(code)))
	}
}

func (o *Orchestrator) onWakeEnd() {
	if o.state.Listening && o.state.Mode == ModeAwaitingWake && o.dialog == nil {
		o.hold(o.settings.RestartDelay)
	}
}

func (o *Orchestrator) onCommandResult(transcript string) {
	if o.state.Mode != ModeAwaitingCommand || !o.state.Listening {
		return
	}
	o.command.Stop()
	o.handleCommand(transcript, events.SessionCommand)
}

func (o *Orchestrator) onCommandError(code ErrorCode) {
	if code != ErrorNoSpeech && code != ErrorAborted {
		logging.LogWarn("Command session error", zap.String("code", string(code)))
	}
}

func (o *Orchestrator) onCommandEnd() {
	if !o.state.Listening || o.dialog != nil || o.commandArmed {
		return
	}
	if o.state.Mode != ModeAwaitingCommand && o.state.Mode != ModeDispatching {
		return
	}
	o.after(timerSettle, o.settings.SettleDelay, func() {
		if !o.state.Listening || o.dialog != nil || o.commandArmed {
			return
		}
		if o.state.Mode == ModeAwaitingCommand || o.state.Mode == ModeDispatching {
			o.transition(ModeAwaitingWake)
		}
	})
}

// handleCommand interprets a transcript and routes the intent
func (o *Orchestrator) handleCommand(transcript, session string) {
	intent := command.Interpret(transcript)
	fromVoice := session == events.SessionCommand

	event := events.NewVoiceEvent(o.settings.DeviceID, session, "")
	confidence := 1.0
	if intent.Kind == command.KindUnrecognized {
		confidence = 0
	}
	event.SetInterpretation(transcript, string(intent.Kind), intent.Entities(), confidence)

	logging.LogVoiceEvent(event, "Command interpreted",
		zap.String("intent", string(intent.Kind)),
		zap.String("session", session))

	if fromVoice {
		o.transition(ModeDispatching)
	}

	switch {
	case intent.Kind == command.KindPromptForMissingArgument:
		if fromVoice {
			o.transition(ModeAwaitingCommand)
			o.commandArmed = true
		}
		o.say(promptMissingTask, nil)
		o.recordEvent(event, promptMissingTask, nil)

	case intent.Kind == command.KindUnrecognized:
		o.say(replyUnrecognized, nil)
		o.observer.Status(replyUnrecognized, false)
		event.SetError(errors.New("command not recognized"))
		o.recordEvent(event, replyUnrecognized, nil)

	case intent.Kind == command.KindSetSortMode:
		o.setSort(intent.Sort)
		o.recordEvent(event, sortDescription(intent.Sort), nil)

	case intent.Destructive():
		request := destructiveRequest(intent)
		if err := o.openDialog(request); err != nil {
			o.recordEvent(event, "", err)
			return
		}
		o.recordEvent(event, request.spoken(), nil)

	default:
		a, ok := actionFor(intent)
		if !ok {
			o.say(replyUnrecognized, nil)
			return
		}
		o.dispatch(a, event)
	}
}

// dispatch runs a backend action off the loop and posts the outcome back
func (o *Orchestrator) dispatch(a action, event *events.VoiceEvent) {
	ctx, backend, sort := o.ctx, o.backend, o.sort
	timeout := o.settings.BackendTimeout

	o.dispatches.Add(1)
	go func() {
		defer o.dispatches.Done()

		actionCtx, cancel := context.WithTimeout(ctx, timeout)
		out := execute(actionCtx, backend, a, sort)
		cancel()

		o.post(func() { o.applyOutcome(out) })

		if event != nil {
			response := out.message
			if out.err != nil {
				response = ErrorMessage(out.err)
			}
			o.sendEvent(ctx, event, response, out.err)
		}
	}()
}

func (o *Orchestrator) applyOutcome(out outcome) {
	if out.err != nil {
		message := ErrorMessage(out.err)
		logging.LogWarn("Backend action failed",
			zap.String("action", out.action),
			zap.Error(out.err))
		o.observer.Status(message, true)
		o.say(message, nil)
		return
	}

	if out.message != "" {
		o.observer.Status(out.message, false)
		o.say(out.message, nil)
	}

	if out.listed && out.sort == o.sort {
		o.tasks = out.tasks
		o.observer.TasksChanged(o.tasks, o.sort)
	}
}

// recordEvent finalizes and stores an event that needed no backend round trip
func (o *Orchestrator) recordEvent(event *events.VoiceEvent, response string, err error) {
	ctx := o.ctx
	o.dispatches.Add(1)
	go func() {
		defer o.dispatches.Done()
		o.sendEvent(ctx, event, response, err)
	}()
}

func (o *Orchestrator) sendEvent(ctx context.Context, event *events.VoiceEvent, response string, err error) {
	event.SetResponse(response)
	if err != nil {
		event.SetError(err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.settings.BackendTimeout)
	defer cancel()

	if recordErr := o.backend.RecordVoiceEvent(sendCtx, event); recordErr != nil {
		logging.LogWarn("Failed to record voice event",
			zap.String("event_uuid", event.UUID),
			zap.Error(recordErr))
	}
}

func (o *Orchestrator) setSort(sort todo.SortMode) {
	if o.sort != sort {
		o.sort = sort
		o.observer.TasksChanged(o.tasks, o.sort)
	}
	description := sortDescription(sort)
	o.observer.Status(description, false)
	o.say(description, nil)
	o.dispatch(refreshAction(), nil)
}

// Refresh reloads the task list
func (o *Orchestrator) Refresh() {
	o.post(func() { o.dispatch(refreshAction(), nil) })
}

// SetSort changes the list ordering and reloads the list
func (o *Orchestrator) SetSort(sort todo.SortMode) {
	o.post(func() { o.setSort(sort) })
}

// Toggle flips a task between done and pending
func (o *Orchestrator) Toggle(id string) {
	o.post(func() { o.dispatch(toggleAction(id), nil) })
}

// Update edits a task
func (o *Orchestrator) Update(update todo.TaskUpdate) {
	o.post(func() { o.dispatch(updateAction(update), nil) })
}

// Delete asks for confirmation, then deletes the task
func (o *Orchestrator) Delete(id, name string) {
	o.post(func() {
		_ = o.openDialog(deleteRequest(id, name))
	})
}

// ClearAll asks for confirmation, then deletes every task
func (o *Orchestrator) ClearAll() {
	o.post(func() {
		_ = o.openDialog(clearRequest(false))
	})
}

// ClearCompleted asks for confirmation, then deletes completed tasks
func (o *Orchestrator) ClearCompleted() {
	o.post(func() {
		_ = o.openDialog(clearRequest(true))
	})
}
