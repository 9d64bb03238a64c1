/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

// Snapshot is a read-only view of the scheduler.
type Snapshot struct {
	Mode         Mode     `json:"mode"`
	LoopID       string   `json:"loopId,omitempty"`
	Repeat       bool     `json:"repeat"`
	Queue        []string `json:"queue,omitempty"`
	Cursor       int      `json:"cursor"`
	PlaybackRate float64  `json:"playbackRate"`
	SkipStep     float64  `json:"skipStep"`
}

// State returns the current snapshot. LoopID is the audible loop in both
// playing modes.
func (s *Scheduler) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Snapshot {
	snap := Snapshot{
		Mode:         s.mode.kind(),
		Cursor:       -1,
		PlaybackRate: s.rate,
		SkipStep:     s.skipStep,
	}
	switch m := s.mode.(type) {
	case *singleMode:
		snap.LoopID = m.loop.ID
		snap.Repeat = m.repeat
	case *sequenceMode:
		snap.LoopID = m.live.ID
		snap.Queue = loopIDs(m.queue)
		snap.Cursor = m.cursor
	}
	return snap
}

// ActivePollers reports running poller goroutines. A replaced poller may
// linger briefly after cancellation but never acts.
func (s *Scheduler) ActivePollers() int {
	return int(s.activePollers.Load())
}
