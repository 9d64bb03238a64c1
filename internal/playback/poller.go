/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"time"

	"github.com/friendsincode/looplearn/internal/telemetry"
)

// poller is the handle of one boundary-polling goroutine.
type poller struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the goroutine without waiting for it. A tick already in
// flight is discarded by the identity check in Scheduler.tick.
func (p *poller) stop() {
	if p != nil {
		p.cancel()
	}
}

// startPollerLocked spawns a poller ticking at the configured interval.
// Must be called with s.mu held.
func (s *Scheduler) startPollerLocked() *poller {
	s.nextPollerID++
	ctx, cancel := context.WithCancel(s.baseCtx)
	p := &poller{
		id:     s.nextPollerID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.activePollers.Add(1)
	telemetry.SchedulerActivePollers.Inc()

	go func() {
		defer close(p.done)
		defer telemetry.SchedulerActivePollers.Dec()
		defer s.activePollers.Add(-1)

		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(p)
			}
		}
	}()

	s.logger.Debug().Uint64("poller_id", p.id).Dur("interval", s.cfg.PollInterval).Msg("poller started")
	return p
}
