/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// MPVConfig configures the mpv JSON IPC backend. mpv must be started with
// --input-ipc-server=<SocketPath> --idle.
type MPVConfig struct {
	SocketPath     string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultMPVConfig returns default mpv settings.
func DefaultMPVConfig() MPVConfig {
	return MPVConfig{
		SocketPath:     "/tmp/looplearn-mpv.sock",
		DialTimeout:    5 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

const mpvObservePause = 1

type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type mpvMessage struct {
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	ID        int64           `json:"id"`
}

// MPVPlayer drives an mpv process over its JSON IPC socket.
type MPVPlayer struct {
	cfg    MPVConfig
	logger zerolog.Logger
	conn   net.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[int64]chan mpvMessage
	nextID  atomic.Int64
	loaded  atomic.Bool

	events    chan StateChange
	done      chan struct{}
	closeOnce sync.Once
}

// DialMPV connects to a running mpv instance and subscribes to pause changes.
func DialMPV(ctx context.Context, cfg MPVConfig, logger zerolog.Logger) (*MPVPlayer, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial mpv socket %s: %w", cfg.SocketPath, err)
	}

	m := &MPVPlayer{
		cfg:     cfg,
		logger:  logger.With().Str("player", BackendMPV).Str("socket", cfg.SocketPath).Logger(),
		conn:    conn,
		pending: make(map[int64]chan mpvMessage),
		events:  make(chan StateChange, 16),
		done:    make(chan struct{}),
	}
	go m.readLoop()

	if _, err := m.command(ctx, "observe_property", mpvObservePause, "pause"); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("observe pause: %w", err)
	}

	m.logger.Info().Msg("connected to mpv")
	return m, nil
}

func (m *MPVPlayer) readLoop() {
	defer close(m.events)

	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			m.logger.Warn().Err(err).Msg("malformed mpv message")
			continue
		}
		if msg.Event != "" {
			m.handleEvent(msg)
			continue
		}

		m.mu.Lock()
		ch, ok := m.pending[msg.RequestID]
		delete(m.pending, msg.RequestID)
		m.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-m.done:
		default:
			m.logger.Error().Err(err).Msg("mpv connection lost")
		}
	}
}

func (m *MPVPlayer) handleEvent(msg mpvMessage) {
	now := time.Now()
	switch msg.Event {
	case "file-loaded":
		m.loaded.Store(true)
		notify(m.events, StateChange{State: StateCued, Ready: true, At: now})
	case "end-file":
		m.loaded.Store(false)
		notify(m.events, StateChange{State: StateEnded, At: now})
	case "property-change":
		if msg.ID != mpvObservePause || msg.Name != "pause" {
			return
		}
		var paused bool
		if err := json.Unmarshal(msg.Data, &paused); err != nil {
			return
		}
		state := StatePlaying
		if paused {
			state = StatePaused
		}
		notify(m.events, StateChange{State: state, Ready: m.loaded.Load(), At: now})
	}
}

func (m *MPVPlayer) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	id := m.nextID.Add(1)
	reply := make(chan mpvMessage, 1)
	m.mu.Lock()
	m.pending[id] = reply
	m.mu.Unlock()

	data, err := json.Marshal(mpvRequest{Command: args, RequestID: id})
	if err != nil {
		m.forget(id)
		return nil, fmt.Errorf("encode mpv command: %w", err)
	}

	m.writeMu.Lock()
	_, err = m.conn.Write(append(data, '\n'))
	m.writeMu.Unlock()
	if err != nil {
		m.forget(id)
		return nil, fmt.Errorf("write mpv command: %w", err)
	}

	timer := time.NewTimer(m.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		if msg.Error != "success" {
			if strings.Contains(msg.Error, "unavailable") {
				return nil, ErrNotReady
			}
			return nil, fmt.Errorf("mpv %v: %s", args[0], msg.Error)
		}
		return msg.Data, nil
	case <-timer.C:
		m.forget(id)
		return nil, fmt.Errorf("mpv %v: %w", args[0], context.DeadlineExceeded)
	case <-ctx.Done():
		m.forget(id)
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrClosed
	}
}

func (m *MPVPlayer) forget(id int64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *MPVPlayer) requireLoaded() error {
	if !m.loaded.Load() {
		return ErrNotReady
	}
	return nil
}

// Seek implements Player. mpv always seeks past its cache, so allowAhead is
// implied.
func (m *MPVPlayer) Seek(ctx context.Context, seconds float64, allowAhead bool) error {
	if err := m.requireLoaded(); err != nil {
		return err
	}
	_, err := m.command(ctx, "seek", seconds, "absolute+exact")
	return err
}

// Play implements Player.
func (m *MPVPlayer) Play(ctx context.Context) error {
	if err := m.requireLoaded(); err != nil {
		return err
	}
	_, err := m.command(ctx, "set_property", "pause", false)
	return err
}

// Pause implements Player.
func (m *MPVPlayer) Pause(ctx context.Context) error {
	if err := m.requireLoaded(); err != nil {
		return err
	}
	_, err := m.command(ctx, "set_property", "pause", true)
	return err
}

// CurrentTime implements Player.
func (m *MPVPlayer) CurrentTime(ctx context.Context) (float64, error) {
	if err := m.requireLoaded(); err != nil {
		return 0, err
	}
	data, err := m.command(ctx, "get_property", "time-pos")
	if err != nil {
		return 0, err
	}
	var pos *float64
	if err := json.Unmarshal(data, &pos); err != nil {
		return 0, fmt.Errorf("decode time-pos: %w", err)
	}
	if pos == nil {
		return 0, ErrNotReady
	}
	return *pos, nil
}

// SetPlaybackRate implements Player.
func (m *MPVPlayer) SetPlaybackRate(ctx context.Context, rate float64) error {
	if err := m.requireLoaded(); err != nil {
		return err
	}
	_, err := m.command(ctx, "set_property", "speed", rate)
	return err
}

// LoadMedia implements Player. A bare YouTube id is expanded to a URL so
// mpv's ytdl hook can resolve it.
func (m *MPVPlayer) LoadMedia(ctx context.Context, mediaID string) error {
	target := mediaID
	if !strings.ContainsAny(mediaID, "/.:") {
		target = "https://youtu.be/" + mediaID
	}
	m.loaded.Store(false)
	if _, err := m.command(ctx, "loadfile", target, "replace"); err != nil {
		return err
	}
	// Keep the first frame paused until the scheduler seeks and plays.
	_, err := m.command(ctx, "set_property", "pause", true)
	if errors.Is(err, ErrNotReady) {
		return nil
	}
	return err
}

// Events implements Player.
func (m *MPVPlayer) Events() <-chan StateChange {
	return m.events
}

// Close implements Player. mpv itself keeps running.
func (m *MPVPlayer) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		err = m.conn.Close()
		m.logger.Info().Msg("disconnected from mpv")
	})
	return err
}
