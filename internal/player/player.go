/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player defines the contract for the external video player and the
// backends that implement it.
package player

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotReady indicates the player cannot accept commands yet (no media
	// loaded, page still initialising, socket not connected).
	ErrNotReady = errors.New("player not ready")

	// ErrClosed indicates the player has been shut down.
	ErrClosed = errors.New("player closed")
)

// State mirrors the YouTube IFrame API player states.
type State int

const (
	StateUnstarted State = -1
	StateEnded     State = 0
	StatePlaying   State = 1
	StatePaused    State = 2
	StateBuffering State = 3
	StateCued      State = 5
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "unknown"
	}
}

// StateChange is an asynchronous notification from the player.
type StateChange struct {
	State State
	Ready bool
	At    time.Time
}

// Player is the remote, asynchronously reporting video player. Seek with
// allowAhead lets the backend fetch beyond its buffered range.
type Player interface {
	Seek(ctx context.Context, seconds float64, allowAhead bool) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	CurrentTime(ctx context.Context) (float64, error)
	SetPlaybackRate(ctx context.Context, rate float64) error
	LoadMedia(ctx context.Context, mediaID string) error

	// Events delivers state changes. The channel is closed by Close.
	Events() <-chan StateChange
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendSimulated = "sim"
	BackendYouTube   = "youtube"
	BackendMPV       = "mpv"
)

// notify performs a non-blocking send so a slow consumer never stalls a backend.
func notify(ch chan StateChange, sc StateChange) {
	select {
	case ch <- sc:
	default:
	}
}
