/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sort"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/telemetry"
)

// Cursor relocation outcomes.
const (
	RelocateKept    = "anchor_kept"
	RelocateForward = "anchor_forward"
	RelocateWrap    = "anchor_wrap"
	RelocateEmptied = "emptied"
)

// BuildQueue returns copies of the selected loops ordered by Index.
func BuildQueue(loops []models.Loop, isSelected func(models.Loop) bool) []models.Loop {
	queue := make([]models.Loop, 0, len(loops))
	for _, l := range loops {
		if isSelected(l) {
			queue = append(queue, l)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Index < queue[j].Index
	})
	return queue
}

// relocateCursor places the cursor in a rebuilt queue so that playback
// continues from the anchor. If the anchor survived, the cursor points at it.
// Otherwise it points one before the first entry ordered after the anchor,
// so the next advance lands on that entry; with no such entry it points at
// the last slot and the next advance wraps to the top. queue must be non-empty.
//
// When the anchor was deleted from the list, the loops after it have been
// renumbered down by one, so anchorIndex itself already names the next loop.
func relocateCursor(queue []models.Loop, anchorID string, anchorIndex int, deleted bool) (int, string) {
	for i, l := range queue {
		if l.ID == anchorID {
			return i, RelocateKept
		}
	}
	for i, l := range queue {
		if l.Index > anchorIndex || (deleted && l.Index == anchorIndex) {
			if i == 0 {
				// len-1 + 1 wraps onto entry 0.
				return len(queue) - 1, RelocateForward
			}
			return i - 1, RelocateForward
		}
	}
	return len(queue) - 1, RelocateWrap
}

// RefreshQueue rebuilds the play queue after a selection or list edit while a
// sequence is playing. The audible loop is never interrupted or reseeked; only
// the target of the next advance changes. An empty result stops playback.
// Outside sequence mode it does nothing.
func (s *Scheduler) RefreshQueue(ctx context.Context, loops []models.Loop, isSelected func(models.Loop) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mode.(*sequenceMode)
	if !ok {
		return
	}

	queue := BuildQueue(loops, isSelected)
	if len(queue) == 0 {
		telemetry.QueueRefreshesTotal.WithLabelValues(RelocateEmptied).Inc()
		s.logger.Info().Msg("selection emptied during sequence, stopping")
		s.stopLocked(ctx)
		return
	}

	// Track the anchor's live position while it is still in the list, so a
	// later delete relocates from where it last was.
	deleted := true
	for _, l := range loops {
		if l.ID == m.live.ID {
			m.live.Index = l.Index
			deleted = false
			break
		}
	}

	cursor, outcome := relocateCursor(queue, m.live.ID, m.live.Index, deleted)
	if outcome == RelocateKept {
		m.live = queue[cursor]
	}
	m.queue = queue
	m.cursor = cursor

	telemetry.QueueRefreshesTotal.WithLabelValues(outcome).Inc()
	telemetry.QueueLength.Set(float64(len(queue)))

	s.logger.Debug().
		Str("outcome", outcome).
		Int("cursor", cursor).
		Int("queue_len", len(queue)).
		Str("live_id", m.live.ID).
		Msg("queue refreshed")

	s.publish(events.EventQueueRefreshed, events.Payload{
		"outcome":   outcome,
		"cursor":    cursor,
		"queue_len": len(queue),
		"queue":     loopIDs(queue),
		"live_id":   m.live.ID,
	})
}

func loopIDs(loops []models.Loop) []string {
	ids := make([]string, len(loops))
	for i, l := range loops {
		ids[i] = l.ID
	}
	return ids
}
