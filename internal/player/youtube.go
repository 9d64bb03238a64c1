/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/ysmood/gson"
)

// stateBinding is the window function the host page calls on every IFrame
// API state change.
const stateBinding = "looplearnState"

// YouTubeConfig configures the headless browser that hosts the IFrame player.
type YouTubeConfig struct {
	// PageURL serves the player host page (see server's /player route).
	PageURL string
	// ControlURL attaches to an already running browser. Empty launches one.
	ControlURL string
	Headless   bool
}

// YouTubePlayer drives the YouTube IFrame API inside a Chromium page.
// Commands fail with ErrNotReady until Connect has finished and the page
// reports that the IFrame player is ready.
type YouTubePlayer struct {
	cfg    YouTubeConfig
	logger zerolog.Logger

	mu          sync.Mutex
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	stopBinding func() error
	ready       atomic.Bool
	closed      bool

	// eventsMu is separate from mu: the page binding fires while Connect
	// still holds mu.
	eventsMu     sync.Mutex
	eventsClosed bool
	events       chan StateChange
}

// NewYouTube creates a disconnected player. Call Connect once the host page
// is being served.
func NewYouTube(cfg YouTubeConfig, logger zerolog.Logger) *YouTubePlayer {
	return &YouTubePlayer{
		cfg:    cfg,
		logger: logger.With().Str("player", BackendYouTube).Logger(),
		events: make(chan StateChange, 16),
	}
}

// Connect launches (or attaches to) the browser and opens the host page.
func (y *YouTubePlayer) Connect(ctx context.Context) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return ErrClosed
	}
	if y.page != nil {
		return nil
	}

	controlURL := y.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(y.cfg.Headless).
			Set("autoplay-policy", "no-user-gesture-required")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		y.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		y.killLauncher()
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		y.killLauncher()
		return fmt.Errorf("open page: %w", err)
	}

	stop, err := page.Expose(stateBinding, y.onStateChange)
	if err != nil {
		_ = browser.Close()
		y.killLauncher()
		return fmt.Errorf("expose state binding: %w", err)
	}

	if err := page.Context(ctx).Navigate(y.cfg.PageURL); err != nil {
		_ = stop()
		_ = browser.Close()
		y.killLauncher()
		return fmt.Errorf("navigate to %s: %w", y.cfg.PageURL, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		y.logger.Warn().Err(err).Msg("player page load not confirmed")
	}

	y.browser = browser
	y.page = page
	y.stopBinding = stop
	y.logger.Info().Str("page", y.cfg.PageURL).Msg("player page opened")
	return nil
}

func (y *YouTubePlayer) killLauncher() {
	if y.launcher != nil {
		y.launcher.Kill()
		y.launcher = nil
	}
}

func (y *YouTubePlayer) onStateChange(arg gson.JSON) (interface{}, error) {
	ready := arg.Get("ready").Bool()
	y.ready.Store(ready)
	sc := StateChange{
		State: State(arg.Get("state").Int()),
		Ready: ready,
		At:    time.Now(),
	}

	y.eventsMu.Lock()
	if !y.eventsClosed {
		notify(y.events, sc)
	}
	y.eventsMu.Unlock()

	y.logger.Debug().Str("state", sc.State.String()).Bool("ready", ready).Msg("player state change")
	return nil, nil
}

// call invokes a method on the page's player bridge. The bridge returns null
// while the IFrame player is not ready.
func (y *YouTubePlayer) call(ctx context.Context, method string, args ...any) (gson.JSON, error) {
	y.mu.Lock()
	page := y.page
	closed := y.closed
	y.mu.Unlock()

	if closed {
		return gson.JSON{}, ErrClosed
	}
	if page == nil || !y.ready.Load() {
		return gson.JSON{}, ErrNotReady
	}
	if args == nil {
		args = []any{}
	}

	res, err := page.Context(ctx).Eval(`(method, args) => window.looplearn.call(method, args)`, method, args)
	if err != nil {
		return gson.JSON{}, fmt.Errorf("youtube %s: %w", method, err)
	}
	if res.Value.Nil() {
		return gson.JSON{}, ErrNotReady
	}
	return res.Value, nil
}

// Seek implements Player.
func (y *YouTubePlayer) Seek(ctx context.Context, seconds float64, allowAhead bool) error {
	_, err := y.call(ctx, "seekTo", seconds, allowAhead)
	return err
}

// Play implements Player.
func (y *YouTubePlayer) Play(ctx context.Context) error {
	_, err := y.call(ctx, "playVideo")
	return err
}

// Pause implements Player.
func (y *YouTubePlayer) Pause(ctx context.Context) error {
	_, err := y.call(ctx, "pauseVideo")
	return err
}

// CurrentTime implements Player.
func (y *YouTubePlayer) CurrentTime(ctx context.Context) (float64, error) {
	v, err := y.call(ctx, "getCurrentTime")
	if err != nil {
		return 0, err
	}
	return v.Num(), nil
}

// SetPlaybackRate implements Player.
func (y *YouTubePlayer) SetPlaybackRate(ctx context.Context, rate float64) error {
	_, err := y.call(ctx, "setPlaybackRate", rate)
	return err
}

// LoadMedia implements Player. The video is cued, not started.
func (y *YouTubePlayer) LoadMedia(ctx context.Context, mediaID string) error {
	_, err := y.call(ctx, "cueVideoById", mediaID)
	return err
}

// Events implements Player.
func (y *YouTubePlayer) Events() <-chan StateChange {
	return y.events
}

// Close implements Player.
func (y *YouTubePlayer) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return nil
	}
	y.closed = true
	y.ready.Store(false)

	y.eventsMu.Lock()
	y.eventsClosed = true
	close(y.events)
	y.eventsMu.Unlock()

	var err error
	if y.stopBinding != nil {
		_ = y.stopBinding()
	}
	if y.browser != nil {
		err = y.browser.Close()
	}
	y.killLauncher()
	y.logger.Info().Msg("player browser closed")
	return err
}
