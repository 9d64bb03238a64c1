/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package editor holds the editing session: the current loop list, the
// selection, pending marks, and the scheduler that plays them.
package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/library"
	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/playback"
	"github.com/friendsincode/looplearn/internal/selection"
	"github.com/friendsincode/looplearn/internal/telemetry"
)

// Marks are the pending start and end taken from the player position.
type Marks struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// View is a consistent copy of the session for display.
type View struct {
	List      *models.LoopList  `json:"list"`
	Selected  []int             `json:"selected"`
	Marks     Marks             `json:"marks"`
	Playback  playback.Snapshot `json:"playback"`
	SavedName string            `json:"savedName,omitempty"`
}

// Session serialises every edit. Lock order is Session, then Scheduler.
type Session struct {
	sched  *playback.Scheduler
	store  library.Store
	bus    events.Publisher
	logger zerolog.Logger

	mu        sync.Mutex
	list      *models.LoopList
	selected  *selection.Set
	marks     Marks
	savedName string
}

// New creates a session with an empty list.
func New(sched *playback.Scheduler, store library.Store, bus events.Publisher, logger zerolog.Logger) *Session {
	if bus == nil {
		bus = events.Discard
	}
	return &Session{
		sched:    sched,
		store:    store,
		bus:      bus,
		logger:   logger.With().Str("component", "editor").Logger(),
		list:     models.NewLoopList(""),
		selected: selection.New(),
	}
}

// Scheduler exposes the scheduler for transport commands that do not touch
// the list (stop, adjust, skip, rate).
func (s *Session) Scheduler() *playback.Scheduler {
	return s.sched
}

// List returns a copy of the current list.
func (s *Session) List() *models.LoopList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Clone()
}

// View returns list, selection, marks and playback state together.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		List:      s.list.Clone(),
		Selected:  s.selectedIndicesLocked(),
		Marks:     s.marks,
		Playback:  s.sched.State(),
		SavedName: s.savedName,
	}
}

// NewList replaces the session with an empty list.
func (s *Session) NewList(ctx context.Context, title string) *models.LoopList {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked(ctx, models.NewLoopList(title), "")
	s.publishListLocked("new")
	return s.list.Clone()
}

// Replace swaps in list wholesale. An invalid list is rejected and the
// session is left as it was.
func (s *Session) Replace(ctx context.Context, list *models.LoopList) error {
	next := list.Clone()
	if err := next.Validate(); err != nil {
		return err
	}
	if next.ListID == "" {
		next.ListID = models.NewLoopList("").ListID
	}
	next.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked(ctx, next, "")
	s.publishListLocked("replace")
	return nil
}

// Load reads a list from the library and makes it current. Any store error
// is returned and the session is unchanged.
func (s *Session) Load(ctx context.Context, name string) (_ *models.LoopList, err error) {
	ctx, span := telemetry.StartSpan(ctx, "session", "load", telemetry.AttrListName.String(name))
	defer func() { telemetry.EndSpan(span, err) }()

	if s.store == nil {
		return nil, fmt.Errorf("load %q: %w", name, library.ErrNotFound)
	}
	list, err := s.store.Load(ctx, name)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("library load failed")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked(ctx, list, name)
	s.publishListLocked("load")
	s.bus.Publish(events.EventLibraryLoaded, events.Payload{
		"name":    name,
		"list_id": list.ListID,
		"loops":   list.Len(),
	})
	return s.list.Clone(), nil
}

// Save writes the current list to the library and returns the stored name.
func (s *Session) Save(ctx context.Context, name string) (_ string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "session", "save", telemetry.AttrListName.String(name))
	defer func() { telemetry.EndSpan(span, err) }()

	if s.store == nil {
		return "", fmt.Errorf("save %q: %w", name, library.ErrPermissionDenied)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.Save(ctx, name, s.list)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("library save failed")
		return "", err
	}
	s.savedName = stored
	s.bus.Publish(events.EventLibrarySaved, events.Payload{
		"name":    stored,
		"list_id": s.list.ListID,
		"loops":   s.list.Len(),
	})
	return stored, nil
}

// Library lists stored entries.
func (s *Session) Library(ctx context.Context) ([]library.Entry, error) {
	if s.store == nil {
		return []library.Entry{}, nil
	}
	return s.store.List(ctx)
}

// LoadVideo points the list at another video and cues it. The list keeps the
// new video even if the player refuses it; the player error is returned.
func (s *Session) LoadVideo(ctx context.Context, input string) (_ string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "session", "load_video")
	defer func() { telemetry.EndSpan(span, err) }()

	id, err := models.ParseVideoID(input)
	if err != nil {
		return "", err
	}
	span.SetAttributes(telemetry.AttrVideoID.String(id))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.list.VideoID = id
	s.list.VideoURL = models.VideoURL(id)
	s.list.UpdatedAt = time.Now().UTC()
	s.publishListLocked("video")

	if err := s.sched.LoadMedia(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

func (s *Session) resetLocked(ctx context.Context, list *models.LoopList, savedName string) {
	if s.sched.State().Mode != playback.ModeIdle {
		s.sched.Stop(ctx)
	}
	s.selected.Clear()
	s.marks = Marks{}
	s.list = list
	s.savedName = savedName

	if list.VideoID != "" {
		// A player that is not up yet is cued again by the next LoadVideo.
		_ = s.sched.LoadMedia(ctx, list.VideoID)
	}
	s.publishSelectionLocked()
}

func (s *Session) publishListLocked(reason string) {
	s.bus.Publish(events.EventListChanged, events.Payload{
		"reason":   reason,
		"list_id":  s.list.ListID,
		"title":    s.list.Title,
		"video_id": s.list.VideoID,
		"loops":    s.list.Len(),
	})
}
