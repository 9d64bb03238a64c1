/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package editor

import (
	"context"
)

// PlaySingle plays the loop at index once, or forever when repeat is set.
func (s *Session) PlaySingle(ctx context.Context, index int, repeat bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, err := s.list.At(index)
	if err != nil {
		return err
	}
	return s.sched.PlaySingle(ctx, loop, repeat)
}

// PlaySequence plays the selected loops in index order.
func (s *Session) PlaySequence(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.PlaySequence(ctx, s.list.Loops, s.isSelected)
}

// Stop halts playback.
func (s *Session) Stop(ctx context.Context) {
	s.sched.Stop(ctx)
}
