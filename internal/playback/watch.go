/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/player"
)

// WatchPlayer relays player state changes to the bus until ctx ends or the
// player closes its event channel. When the player becomes ready the stored
// rate is applied. Boundary detection never depends on these notifications.
func (s *Scheduler) WatchPlayer(ctx context.Context) {
	ch := s.player.Events()
	wasReady := false
	for {
		select {
		case <-ctx.Done():
			return
		case sc, ok := <-ch:
			if !ok {
				s.logger.Debug().Msg("player event stream closed")
				return
			}

			s.publish(events.EventPlayerState, events.Payload{
				"state": sc.State.String(),
				"ready": sc.Ready,
				"at":    sc.At,
			})

			if sc.Ready && (!wasReady || sc.State == player.StateCued) {
				s.applyRate(ctx)
			}
			wasReady = sc.Ready
		}
	}
}

func (s *Scheduler) applyRate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate := s.rate
	_ = s.invoke("set_rate", func() error { return s.player.SetPlaybackRate(ctx, rate) })
}
