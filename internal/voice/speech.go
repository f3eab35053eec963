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
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-todo/internal/logging"
	"github.com/loqalabs/loqa-todo/internal/security"
	"go.uber.org/zap"
)

// Speaker produces one utterance and returns when it has finished playing.
// Implementations must return promptly once ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Utterance is one Speak request; Done closes when it has completed
type Utterance struct {
	ID   string
	Text string

	done        chan struct{}
	interrupted bool
	err         error
}

func newUtterance(text string) *Utterance {
	return &Utterance{
		ID:   uuid.New().String(),
		Text: text,
		done: make(chan struct{}),
	}
}

// Done is closed once the utterance has finished, failed or been superseded
func (u *Utterance) Done() <-chan struct{} {
	return u.done
}

// Interrupted reports whether a later Speak cut this utterance short.
// Only meaningful after Done is closed.
func (u *Utterance) Interrupted() bool {
	<-u.done
	return u.interrupted
}

// Err is the speaker failure, if any. Only meaningful after Done is closed.
func (u *Utterance) Err() error {
	<-u.done
	return u.err
}

func (u *Utterance) finish(err error, interrupted bool) {
	u.err = err
	u.interrupted = interrupted
	close(u.done)
}

// Channel serializes spoken feedback with last-writer-wins semantics:
// each Speak cancels the utterance in flight and waits for it to return
// before handing the new text to the speaker.
type Channel struct {
	speaker Speaker

	mu       sync.Mutex
	cancel   context.CancelFunc
	finished chan struct{}
}

// NewChannel creates an output channel; a nil speaker completes every utterance immediately
func NewChannel(speaker Speaker) *Channel {
	return &Channel{speaker: speaker}
}

// Speak starts text and calls onComplete exactly once when it is over
func (c *Channel) Speak(text string, onComplete func(*Utterance)) *Utterance {
	u := newUtterance(text)

	if c.speaker == nil {
		logging.LogSpeech("skipped", zap.String("utterance_id", u.ID), zap.String("reason", "no speaker"))
		c.Cancel()
		u.finish(nil, false)
		if onComplete != nil {
			onComplete(u)
		}
		return u
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})

	c.mu.Lock()
	prevCancel, prevFinished := c.cancel, c.finished
	c.cancel, c.finished = cancel, finished
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	go func() {
		defer close(finished)
		defer cancel()

		if prevFinished != nil {
			<-prevFinished
		}

		var err error
		if ctx.Err() == nil {
			logging.LogSpeech("start",
				zap.String("utterance_id", u.ID),
				zap.String("text", security.SanitizeLogInput(text)))
			err = c.speak(ctx, text)
		}

		interrupted := ctx.Err() != nil
		switch {
		case interrupted:
			err = nil
			logging.LogSpeech("interrupted", zap.String("utterance_id", u.ID))
		case err != nil:
			logging.LogWarn("Speech output failed", zap.String("utterance_id", u.ID), zap.Error(err))
		default:
			logging.LogSpeech("complete", zap.String("utterance_id", u.ID))
		}

		u.finish(err, interrupted)
		if onComplete != nil {
			onComplete(u)
		}
	}()

	return u
}

// speak shields the channel from a panicking speaker
func (c *Channel) speak(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("speaker panicked")
			logging.Logger.Error("Recovered from speaker panic", zap.Any("panic", r))
		}
	}()
	return c.speaker.Speak(ctx, text)
}

// Cancel interrupts the utterance in flight, if any
func (c *Channel) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the most recent utterance has returned or ctx is done
func (c *Channel) Wait(ctx context.Context) error {
	c.mu.Lock()
	finished := c.finished
	c.mu.Unlock()

	if finished == nil {
		return nil
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSpeaker is a Speaker for headless runs; it logs the text and returns
type LogSpeaker struct{}

func (LogSpeaker) Speak(ctx context.Context, text string) error {
	logging.Sugar.Infow("🔊 Speaking", "text", security.SanitizeLogInput(text))
	return ctx.Err()
}
