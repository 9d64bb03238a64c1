/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Simulated is an in-process player driven by a virtual clock. Position
// advances with wall time multiplied by the playback rate while playing.
type Simulated struct {
	mu       sync.Mutex
	now      func() time.Time
	logger   zerolog.Logger
	events   chan StateChange
	closed   bool
	media    string
	duration float64

	position float64
	anchor   time.Time
	playing  bool
	rate     float64
}

// NewSimulated creates a simulated player. duration <= 0 means unbounded.
func NewSimulated(duration float64, logger zerolog.Logger) *Simulated {
	return newSimulatedWithClock(duration, time.Now, logger)
}

func newSimulatedWithClock(duration float64, now func() time.Time, logger zerolog.Logger) *Simulated {
	return &Simulated{
		now:      now,
		logger:   logger.With().Str("player", BackendSimulated).Logger(),
		events:   make(chan StateChange, 16),
		duration: duration,
		rate:     1,
	}
}

// positionLocked must be called with mu held.
func (s *Simulated) positionLocked() float64 {
	pos := s.position
	if s.playing {
		pos += s.now().Sub(s.anchor).Seconds() * s.rate
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *Simulated) check() error {
	if s.closed {
		return ErrClosed
	}
	if s.media == "" {
		return ErrNotReady
	}
	return nil
}

// Seek implements Player.
func (s *Simulated) Seek(ctx context.Context, seconds float64, allowAhead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	s.position = seconds
	s.anchor = s.now()
	return nil
}

// Play implements Player.
func (s *Simulated) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if !s.playing {
		s.anchor = s.now()
		s.playing = true
		notify(s.events, StateChange{State: StatePlaying, Ready: true, At: s.anchor})
	}
	return nil
}

// Pause implements Player.
func (s *Simulated) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if s.playing {
		s.position = s.positionLocked()
		s.playing = false
		notify(s.events, StateChange{State: StatePaused, Ready: true, At: s.now()})
	}
	return nil
}

// CurrentTime implements Player.
func (s *Simulated) CurrentTime(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.positionLocked(), nil
}

// SetPlaybackRate implements Player.
func (s *Simulated) SetPlaybackRate(ctx context.Context, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	// Fold elapsed time at the old rate before switching.
	s.position = s.positionLocked()
	s.anchor = s.now()
	s.rate = rate
	return nil
}

// LoadMedia implements Player.
func (s *Simulated) LoadMedia(ctx context.Context, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.media = mediaID
	s.position = 0
	s.playing = false
	s.anchor = s.now()
	s.logger.Debug().Str("media_id", mediaID).Msg("media loaded")
	notify(s.events, StateChange{State: StateCued, Ready: true, At: s.anchor})
	return nil
}

// Events implements Player.
func (s *Simulated) Events() <-chan StateChange {
	return s.events
}

// Close implements Player.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
