/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package editor

import (
	"context"
	"sort"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/models"
)

// ToggleSelection flips the loop at index in or out of the selection and
// reports whether it is now selected. A running sequence is refreshed.
func (s *Session) ToggleSelection(ctx context.Context, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, err := s.list.At(index)
	if err != nil {
		return false, err
	}
	on := s.selected.Toggle(loop.ID)
	s.afterSelectionLocked(ctx)
	return on, nil
}

// IsSelected reports whether the loop at index is selected.
func (s *Session) IsSelected(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, err := s.list.At(index)
	if err != nil {
		return false
	}
	return s.selected.IsSelected(loop.ID)
}

// ClearSelection empties the selection. A running sequence stops.
func (s *Session) ClearSelection(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected.Clear()
	s.afterSelectionLocked(ctx)
}

// Selection returns the selected display indices in ascending order.
func (s *Session) Selection() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedIndicesLocked()
}

func (s *Session) afterSelectionLocked(ctx context.Context) {
	s.sched.RefreshQueue(ctx, s.list.Loops, s.isSelected)
	s.publishSelectionLocked()
}

func (s *Session) isSelected(l models.Loop) bool {
	return s.selected.IsSelected(l.ID)
}

func (s *Session) selectedIndicesLocked() []int {
	out := make([]int, 0, s.selected.Len())
	for _, l := range s.list.Loops {
		if s.selected.IsSelected(l.ID) {
			out = append(out, l.Index)
		}
	}
	sort.Ints(out)
	return out
}

func (s *Session) publishSelectionLocked() {
	s.bus.Publish(events.EventSelectionChanged, events.Payload{
		"selected": s.selectedIndicesLocked(),
	})
}
