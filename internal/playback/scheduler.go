/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback drives the external player through single-loop and
// sequence playback, detecting loop boundaries by polling player time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/player"
	"github.com/friendsincode/looplearn/internal/telemetry"
)

var (
	// ErrEmptyQueue indicates a sequence was requested with nothing selected.
	ErrEmptyQueue = errors.New("no loops selected")

	// ErrInvalidRate indicates a non-positive playback rate.
	ErrInvalidRate = errors.New("playback rate must be positive")

	// ErrInvalidSkipStep indicates a non-positive skip step.
	ErrInvalidSkipStep = errors.New("skip step must be positive")
)

// Boundary actions.
const (
	ActionRepeat  = "repeat"
	ActionAdvance = "advance"
	ActionStop    = "stop"
)

// Config tunes the scheduler.
type Config struct {
	PollInterval   time.Duration
	PlaybackRate   float64
	SkipStep       float64
	CommandTimeout time.Duration
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   150 * time.Millisecond,
		PlaybackRate:   1.0,
		SkipStep:       5,
		CommandTimeout: 2 * time.Second,
	}
}

// Scheduler owns the play mode and the single boundary poller. All
// transitions run under mu, including the player calls they make.
type Scheduler struct {
	player player.Player
	bus    events.Publisher
	cfg    Config
	logger zerolog.Logger

	mu           sync.Mutex
	mode         mode
	rate         float64
	skipStep     float64
	nextPollerID uint64

	baseCtx    context.Context
	baseCancel context.CancelFunc

	activePollers atomic.Int64
}

// New creates an idle scheduler.
func New(p player.Player, bus events.Publisher, cfg Config, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = def.PlaybackRate
	}
	if cfg.SkipStep <= 0 {
		cfg.SkipStep = def.SkipStep
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if bus == nil {
		bus = events.Discard
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		player:     p,
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		mode:       idleMode{},
		rate:       cfg.PlaybackRate,
		skipStep:   cfg.SkipStep,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// PlaySingle plays one loop, repeating it at its end if repeat is set.
// Any running poller is replaced. If the player rejects the initial seek or
// play, the previous mode is left untouched and the error is returned.
func (s *Scheduler) PlaySingle(ctx context.Context, loop models.Loop, repeat bool) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "play_single",
		telemetry.AttrLoopID.String(loop.ID),
		telemetry.AttrLoopIndex.Int(loop.Index),
		telemetry.AttrRepeat.Bool(repeat),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startSegmentLocked(ctx, loop); err != nil {
		return err
	}

	s.mode.poller().stop()
	s.setModeLocked(&singleMode{
		loop:   loop,
		repeat: repeat,
		poll:   s.startPollerLocked(),
	})
	telemetry.QueueLength.Set(0)
	return nil
}

// PlaySequence plays the selected loops in index order, wrapping forever.
func (s *Scheduler) PlaySequence(ctx context.Context, loops []models.Loop, isSelected func(models.Loop) bool) (err error) {
	queue := BuildQueue(loops, isSelected)
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "play_sequence",
		telemetry.AttrQueueLength.Int(len(queue)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if len(queue) == 0 {
		return ErrEmptyQueue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startSegmentLocked(ctx, queue[0]); err != nil {
		return err
	}

	s.mode.poller().stop()
	s.setModeLocked(&sequenceMode{
		queue:  queue,
		cursor: 0,
		live:   queue[0],
		poll:   s.startPollerLocked(),
	})
	telemetry.QueueLength.Set(float64(len(queue)))
	return nil
}

// Stop cancels polling, pauses the player and returns to idle.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Scheduler) stopLocked(ctx context.Context) {
	s.mode.poller().stop()
	s.setModeLocked(idleMode{})
	telemetry.QueueLength.Set(0)
	_ = s.invoke("pause", func() error { return s.player.Pause(ctx) })
}

// AdjustTime seeks relative to the current position, clamped at zero. Mode
// and poller are unchanged.
func (s *Scheduler) AdjustTime(ctx context.Context, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.currentTimeLocked(ctx)
	if err != nil {
		return err
	}
	target := math.Max(0, now+delta)
	return s.invoke("seek", func() error { return s.player.Seek(ctx, target, true) })
}

// Skip moves forward or back by the skip step.
func (s *Scheduler) Skip(ctx context.Context, forward bool) error {
	s.mu.Lock()
	step := s.skipStep
	s.mu.Unlock()

	if !forward {
		step = -step
	}
	return s.AdjustTime(ctx, step)
}

// SetPlaybackRate stores the rate and applies it to the player at once. A
// player that is not ready picks the rate up at the next segment start.
func (s *Scheduler) SetPlaybackRate(ctx context.Context, rate float64) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "set_rate", telemetry.AttrPlaybackRate.Float64(rate))
	defer func() { telemetry.EndSpan(span, err) }()

	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rate = rate
	_ = s.invoke("set_rate", func() error { return s.player.SetPlaybackRate(ctx, rate) })
	s.publishStateLocked()
	return nil
}

// SetSkipStep sets the step used by Skip, in seconds.
func (s *Scheduler) SetSkipStep(seconds float64) error {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSkipStep, seconds)
	}
	s.mu.Lock()
	s.skipStep = seconds
	s.mu.Unlock()
	return nil
}

// CurrentTime reads the player position.
func (s *Scheduler) CurrentTime(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTimeLocked(ctx)
}

// LoadMedia stops any playback and cues another video, then reapplies the
// stored rate.
func (s *Scheduler) LoadMedia(ctx context.Context, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.kind() != ModeIdle {
		s.stopLocked(ctx)
	}
	if err := s.invoke("load", func() error { return s.player.LoadMedia(ctx, mediaID) }); err != nil {
		return err
	}
	rate := s.rate
	_ = s.invoke("set_rate", func() error { return s.player.SetPlaybackRate(ctx, rate) })
	return nil
}

// Close stops polling for good. The player is left as is.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode.poller().stop()
	s.mode = idleMode{}
	s.baseCancel()
}

// tick handles one poll. Ticks from a poller that is no longer the mode's
// poller are dropped, so a replaced poller can never act twice.
func (s *Scheduler) tick(p *poller) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == nil || s.mode.poller() != p {
		telemetry.SchedulerStaleTicksTotal.Inc()
		return
	}
	telemetry.SchedulerTicksTotal.Inc()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.CommandTimeout)
	defer cancel()

	now, err := s.currentTimeLocked(ctx)
	if err != nil {
		return
	}

	switch m := s.mode.(type) {
	case *singleMode:
		if now < m.loop.EndTime {
			return
		}
		if m.repeat {
			s.boundaryLocked(ModeSingle, ActionRepeat, m.loop, -1)
			_ = s.startSegmentLocked(ctx, m.loop)
			return
		}
		s.boundaryLocked(ModeSingle, ActionStop, m.loop, -1)
		s.stopLocked(ctx)

	case *sequenceMode:
		if now < m.live.EndTime {
			return
		}
		m.cursor = (m.cursor + 1) % len(m.queue)
		m.live = m.queue[m.cursor]
		s.boundaryLocked(ModeSequence, ActionAdvance, m.live, m.cursor)
		_ = s.startSegmentLocked(ctx, m.live)
	}
}

// startSegmentLocked seeks to the loop start, applies the rate and plays.
func (s *Scheduler) startSegmentLocked(ctx context.Context, loop models.Loop) error {
	if err := s.invoke("seek", func() error { return s.player.Seek(ctx, loop.StartTime, true) }); err != nil {
		return err
	}
	rate := s.rate
	_ = s.invoke("set_rate", func() error { return s.player.SetPlaybackRate(ctx, rate) })
	return s.invoke("play", func() error { return s.player.Play(ctx) })
}

func (s *Scheduler) currentTimeLocked(ctx context.Context) (float64, error) {
	var now float64
	err := s.invoke("current_time", func() error {
		t, err := s.player.CurrentTime(ctx)
		now = t
		return err
	})
	return now, err
}

// invoke runs one player call. Failures and panics are logged, counted and
// reported as player.ErrNotReady.
func (s *Scheduler) invoke(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", player.ErrNotReady, op, r)
		}
		if err == nil {
			return
		}
		if !errors.Is(err, player.ErrNotReady) {
			err = fmt.Errorf("%w: %s: %v", player.ErrNotReady, op, err)
		}
		telemetry.PlayerErrorsTotal.WithLabelValues(op).Inc()
		s.logger.Warn().Err(err).Str("op", op).Msg("player call failed")
		s.publish(events.EventPlayerError, events.Payload{"op": op, "error": err.Error()})
	}()
	return fn()
}

func (s *Scheduler) setModeLocked(next mode) {
	prev := s.mode.kind()
	s.mode = next
	telemetry.SchedulerTransitionsTotal.WithLabelValues(string(prev), string(next.kind())).Inc()
	s.logger.Info().Str("from", string(prev)).Str("to", string(next.kind())).Msg("playback mode changed")
	s.publishStateLocked()
}

func (s *Scheduler) boundaryLocked(m Mode, action string, loop models.Loop, cursor int) {
	telemetry.SchedulerBoundariesTotal.WithLabelValues(string(m), action).Inc()
	s.logger.Debug().Str("mode", string(m)).Str("action", action).Str("loop_id", loop.ID).Int("cursor", cursor).Msg("loop boundary")
	payload := events.Payload{
		"mode":    string(m),
		"action":  action,
		"loop_id": loop.ID,
	}
	if cursor >= 0 {
		payload["cursor"] = cursor
	}
	s.publish(events.EventPlaybackBoundary, payload)
}

func (s *Scheduler) publishStateLocked() {
	snap := s.snapshotLocked()
	s.publish(events.EventPlaybackState, events.Payload{
		"mode":          string(snap.Mode),
		"loop_id":       snap.LoopID,
		"repeat":        snap.Repeat,
		"queue":         snap.Queue,
		"cursor":        snap.Cursor,
		"playback_rate": snap.PlaybackRate,
	})
}

func (s *Scheduler) publish(t events.EventType, p events.Payload) {
	s.bus.Publish(t, p)
}
