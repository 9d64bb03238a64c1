/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package editor

import (
	"context"

	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/playback"
)

// AddSegment appends a loop over [start, end).
func (s *Session) AddSegment(ctx context.Context, start, end float64) (models.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, err := s.list.AddSegment(start, end)
	if err != nil {
		return models.Loop{}, err
	}
	s.afterEditLocked(ctx, "add")
	return loop, nil
}

// MarkStart records the player position as the pending start.
func (s *Session) MarkStart(ctx context.Context) (Marks, error) {
	return s.mark(ctx, func(m *Marks, t float64) { m.Start = t })
}

// MarkEnd records the player position as the pending end.
func (s *Session) MarkEnd(ctx context.Context) (Marks, error) {
	return s.mark(ctx, func(m *Marks, t float64) { m.End = t })
}

func (s *Session) mark(ctx context.Context, set func(*Marks, float64)) (Marks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.sched.CurrentTime(ctx)
	if err != nil {
		return s.marks, err
	}
	set(&s.marks, now)
	return s.marks, nil
}

// Pending returns the current marks.
func (s *Session) Pending() Marks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks
}

// CommitSegment adds a loop from the pending marks and resets them to zero.
// On an invalid range the marks are kept so the user can fix one end.
func (s *Session) CommitSegment(ctx context.Context) (models.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, err := s.list.AddSegment(s.marks.Start, s.marks.End)
	if err != nil {
		return models.Loop{}, err
	}
	s.marks = Marks{}
	s.afterEditLocked(ctx, "add")
	return loop, nil
}

// UpdateSegment edits the loop at index.
func (s *Session) UpdateSegment(ctx context.Context, index int, patch models.LoopPatch) (models.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, err := s.list.UpdateSegment(index, patch)
	if err != nil {
		return models.Loop{}, err
	}
	s.afterEditLocked(ctx, "update")
	return loop, nil
}

// DeleteSegment removes the loop at index and drops it from the selection.
func (s *Session) DeleteSegment(ctx context.Context, index int) (models.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.list.DeleteSegment(index)
	if err != nil {
		return models.Loop{}, err
	}
	if s.selected.IsSelected(removed.ID) {
		s.selected.Remove(removed.ID)
		s.publishSelectionLocked()
	}
	s.afterEditLocked(ctx, "delete")
	return removed, nil
}

// Reorder moves the loop at from to to. Selection follows the loops.
func (s *Session) Reorder(ctx context.Context, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.list.Reorder(from, to); err != nil {
		return err
	}
	if s.selected.Len() > 0 {
		s.publishSelectionLocked()
	}
	s.afterEditLocked(ctx, "reorder")
	return nil
}

// afterEditLocked keeps a running sequence in step with the list and
// announces the change. Single play holds a snapshot of its loop and keeps
// going through edits, but stops once that loop is deleted.
func (s *Session) afterEditLocked(ctx context.Context, reason string) {
	if st := s.sched.State(); st.Mode == playback.ModeSingle && s.list.IndexOf(st.LoopID) < 0 {
		s.logger.Info().Str("loop_id", st.LoopID).Msg("playing loop deleted, stopping")
		s.sched.Stop(ctx)
	}
	s.sched.RefreshQueue(ctx, s.list.Loops, s.isSelected)
	s.publishListLocked(reason)
}
