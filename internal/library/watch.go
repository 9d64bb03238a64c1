/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher publishes library.changed whenever list files in a folder are
// created, written, renamed or removed. Bursts are coalesced.
type Watcher struct {
	dir      string
	bus      events.Publisher
	logger   zerolog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, bus events.Publisher, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		bus:      bus,
		logger:   logger.With().Str("component", "library_watcher").Logger(),
		debounce: defaultDebounce,
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return mapFSError("watch library folder", err)
	}
	w.logger.Info().Str("dir", w.dir).Msg("watching library folder")

	var (
		pending = make(map[string]fsnotify.Op)
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), fileExt) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending[filepath.Base(event.Name)] |= event.Op
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.flush(pending)
			pending = make(map[string]fsnotify.Op)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) flush(pending map[string]fsnotify.Op) {
	for file, op := range pending {
		w.logger.Debug().Str("file", file).Str("op", op.String()).Msg("library changed")
		w.bus.Publish(events.EventLibraryChanged, events.Payload{
			"name":    DisplayName(file),
			"removed": op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename),
		})
	}
}
