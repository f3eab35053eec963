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
	"fmt"

	"github.com/loqalabs/loqa-todo/internal/command"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"go.uber.org/zap"
)

// ErrDialogOpen is returned when a confirmation is requested while another is unanswered
var ErrDialogOpen = errors.New("a confirmation dialog is already open")

const (
	replyDialogBusy = "Please answer the open question first."
	replyNotCaught  = "I didn't catch that. Please say confirm or cancel."
	replyCancelled  = "Okay, cancelled."
)

var dialogOptions = []string{"Confirm", "Cancel"}

// pendingDialog is the one open confirmation. Callbacks run on the loop.
type pendingDialog struct {
	message     string
	voicePrompt string
	accept      *action // backend action run when the dialog is accepted
	onConfirm   func()
	onCancel    func()
}

func (d pendingDialog) spoken() string {
	if d.voicePrompt != "" {
		return d.voicePrompt
	}
	return d.message
}

func destructiveRequest(intent command.Intent) pendingDialog {
	switch intent.Kind {
	case command.KindClearAll:
		return clearRequest(false)
	case command.KindClearCompleted:
		return clearRequest(true)
	default:
		return deleteByNameRequest(intent.Name)
	}
}

func clearRequest(completedOnly bool) pendingDialog {
	if completedOnly {
		return pendingDialog{
			message:     "Delete all completed tasks?",
			voicePrompt: "Warning: this will delete all completed tasks. Say confirm or cancel.",
			accept:      actionRef(clearCompletedAction()),
		}
	}
	return pendingDialog{
		message:     "Delete all tasks?",
		voicePrompt: "Warning: this will delete all tasks. Say confirm or cancel.",
		accept:      actionRef(clearAllAction()),
	}
}

func deleteByNameRequest(name string) pendingDialog {
	return pendingDialog{
		message:     fmt.Sprintf("Delete '%s'?", name),
		voicePrompt: fmt.Sprintf("Delete %s? Say confirm or cancel.", name),
		accept:      actionRef(deleteByNameAction(name)),
	}
}

func deleteRequest(id, name string) pendingDialog {
	return pendingDialog{
		message:     fmt.Sprintf("Delete '%s'?", name),
		voicePrompt: fmt.Sprintf("Delete %s? Say confirm or cancel.", name),
		accept:      actionRef(deleteAction(id, name)),
	}
}

func actionRef(a action) *action {
	return &a
}

// Confirm opens a confirmation dialog for a caller-defined action. onConfirm
// and onCancel run on the orchestrator goroutine and must not block.
func (o *Orchestrator) Confirm(ctx context.Context, message, voicePrompt string, onConfirm, onCancel func()) error {
	result := make(chan error, 1)
	o.post(func() {
		result <- o.openDialog(pendingDialog{
			message:     message,
			voicePrompt: voicePrompt,
			onConfirm:   onConfirm,
			onCancel:    onCancel,
		})
	})

	select {
	case err := <-result:
		return err
	case <-o.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResolveDialog answers the open dialog as a tap would
func (o *Orchestrator) ResolveDialog(resolution Resolution) {
	o.post(func() { o.resolve(resolution) })
}

func (o *Orchestrator) openDialog(request pendingDialog) error {
	if o.dialog != nil {
		logging.LogWarn("Confirmation rejected, another dialog is open",
			zap.String("open", security.SanitizeLogInput(o.dialog.message)),
			zap.String("rejected", security.SanitizeLogInput(request.message)))
		o.observer.Status(replyDialogBusy, true)
		o.say(replyDialogBusy, nil)
		return ErrDialogOpen
	}

	o.dialog = &request
	o.epoch++
	o.cancelTimer(timerSettle)
	o.commandArmed = false
	o.wake.Stop()
	o.command.Stop()

	sess := NewSession(KindConfirm, false, o.settings.Locale, o.engine, SessionHandlers{}, o.post)
	sess.handlers = SessionHandlers{
		OnResult: func(transcript string) {
			if o.confirm == sess {
				o.onConfirmReply(transcript)
			}
		},
		OnError: func(code ErrorCode) {
			if code != ErrorNoSpeech && code != ErrorAborted {
				logging.LogWarn("Confirmation session error", zap.String("code", string(code)))
			}
		},
		OnEnd: func() {
			if o.confirm != sess {
				o.release(sess)
				return
			}
			if o.dialog != nil && o.state.Listening {
				o.hold(o.settings.RestartDelay)
			}
		},
	}
	o.confirm = sess

	o.state.DialogOpen = true
	if o.state.Listening {
		o.transition(ModeInDialog)
	}

	logging.Sugar.Infow("❓ Confirmation opened", "message", security.SanitizeLogInput(request.message))
	o.observer.DialogChanged(Dialog{Open: true, Message: request.message, Options: dialogOptions})
	o.say(request.spoken(), nil)
	return nil
}

func (o *Orchestrator) onConfirmReply(transcript string) {
	switch o.replies.Classify(transcript) {
	case ReplyAccept:
		o.resolve(ResolveAccept)
	case ReplyDecline:
		o.resolve(ResolveDecline)
	default:
		logging.Sugar.Debugw("Unrecognized confirmation reply", "transcript", security.SanitizeLogInput(transcript))
		o.say(replyNotCaught, nil)
	}
}

func (o *Orchestrator) resolve(resolution Resolution) {
	d := o.dialog
	if d == nil {
		return
	}

	logging.Sugar.Infow("✅ Confirmation resolved",
		"message", security.SanitizeLogInput(d.message),
		"resolution", resolution.String())
	o.closeDialog()

	switch resolution {
	case ResolveAccept:
		if d.accept != nil {
			o.dispatch(*d.accept, nil)
		}
		if d.onConfirm != nil {
			d.onConfirm()
		}
	case ResolveDecline:
		o.observer.Status("Cancelled", false)
		o.say(replyCancelled, func() {
			if d.onCancel != nil {
				d.onCancel()
			}
		})
	case ResolveDismiss:
		if d.onCancel != nil {
			d.onCancel()
		}
	}
}

// closeDialog discards the confirm session and schedules wake listening to resume once
func (o *Orchestrator) closeDialog() {
	if o.confirm != nil {
		if o.confirm.Running() {
			o.confirm.Stop()
			o.retired = append(o.retired, o.confirm)
		}
		o.confirm = nil
	}

	o.dialog = nil
	o.epoch++
	o.state.DialogOpen = false
	o.observer.DialogChanged(Dialog{})

	if !o.state.Listening {
		o.transition(ModeIdle)
		return
	}
	o.transition(ModeAwaitingWake)
	o.hold(o.settings.ResumeDelay)
}

// release forgets a discarded session once its capture has ended
func (o *Orchestrator) release(sess *Session) {
	for i, retired := range o.retired {
		if retired == sess {
			o.retired = append(o.retired[:i], o.retired[i+1:]...)
			return
		}
	}
}
