/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "github.com/friendsincode/looplearn/internal/models"

// Mode names the scheduler's current variant.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeSingle   Mode = "single"
	ModeSequence Mode = "sequence"
)

// mode is the scheduler state. Each variant carries only its own fields, and
// the poller lives inside the playing variants so at most one exists.
type mode interface {
	kind() Mode
	poller() *poller
}

type idleMode struct{}

func (idleMode) kind() Mode      { return ModeIdle }
func (idleMode) poller() *poller { return nil }

// singleMode replays or finishes one loop.
type singleMode struct {
	loop   models.Loop
	repeat bool
	poll   *poller
}

func (m *singleMode) kind() Mode      { return ModeSingle }
func (m *singleMode) poller() *poller { return m.poll }

// sequenceMode cycles through queue forever. live is the loop actually
// audible; it normally equals queue[cursor] but survives a refresh that
// removed it, so its own end still triggers the next advance.
type sequenceMode struct {
	queue  []models.Loop
	cursor int
	live   models.Loop
	poll   *poller
}

func (m *sequenceMode) kind() Mode      { return ModeSequence }
func (m *sequenceMode) poller() *poller { return m.poll }
