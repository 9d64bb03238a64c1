/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors local events onto Redis or NATS so other
// processes can follow an editing session.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/telemetry"
)

// Forwarder publishes local events to an external bus and relays events from
// other nodes back into a local publisher.
type Forwarder interface {
	events.Publisher
	Relay(ctx context.Context, local events.Publisher) error
	Close() error
}

type outbound struct {
	eventType events.EventType
	data      []byte
}

// breakerConfig controls when forwarding pauses after repeated failures.
type breakerConfig struct {
	QueueSize     int
	SendTimeout   time.Duration
	MaxFailures   int
	CheckInterval time.Duration
}

// forwarder is the queue, worker and circuit breaker shared by backends.
// Publish never blocks; when the queue is full the event is dropped.
type forwarder struct {
	backend string
	nodeID  string
	logger  zerolog.Logger
	cfg     breakerConfig

	send  func(ctx context.Context, eventType events.EventType, data []byte) error
	probe func(ctx context.Context) error

	queue  chan outbound
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state, owned by the worker goroutine.
	mu        sync.Mutex
	open      bool
	failCount int
	lastCheck time.Time
	closed    bool
}

func newForwarder(backend, nodeID string, cfg breakerConfig, logger zerolog.Logger,
	send func(context.Context, events.EventType, []byte) error,
	probe func(context.Context) error,
) *forwarder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &forwarder{
		backend: backend,
		nodeID:  nodeID,
		logger:  logger,
		cfg:     cfg,
		send:    send,
		probe:   probe,
		queue:   make(chan outbound, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// Publish queues the event for the worker.
func (f *forwarder) Publish(eventType events.EventType, payload events.Payload) {
	data, err := marshalMessage(eventType, payload, f.nodeID)
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event")
		telemetry.EventsForwardedTotal.WithLabelValues(f.backend, "error").Inc()
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- outbound{eventType: eventType, data: data}:
	default:
		telemetry.EventsForwardedTotal.WithLabelValues(f.backend, "dropped").Inc()
	}
}

func (f *forwarder) run() {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			return
		case out, ok := <-f.queue:
			if !ok {
				return
			}
			f.deliver(out)
		}
	}
}

func (f *forwarder) deliver(out outbound) {
	if f.isOpen() && !f.tryClose() {
		telemetry.EventsForwardedTotal.WithLabelValues(f.backend, "skipped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(f.ctx, f.cfg.SendTimeout)
	defer cancel()

	if err := f.send(ctx, out.eventType, out.data); err != nil {
		telemetry.EventsForwardedTotal.WithLabelValues(f.backend, "error").Inc()
		f.logger.Warn().Err(err).Str("event_type", string(out.eventType)).Msg("failed to forward event")
		f.handleFailure()
		return
	}

	telemetry.EventsForwardedTotal.WithLabelValues(f.backend, "ok").Inc()
	f.mu.Lock()
	f.failCount = 0
	f.mu.Unlock()
}

func (f *forwarder) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// handleFailure opens the breaker once MaxFailures sends in a row fail.
func (f *forwarder) handleFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failCount++
	if f.failCount >= f.cfg.MaxFailures && !f.open {
		f.logger.Warn().Int("fail_count", f.failCount).Msg("failure threshold reached, pausing event forwarding")
		f.open = true
		f.lastCheck = time.Now()
	}
}

// tryClose probes the backend at most once per CheckInterval and closes the
// breaker when the probe succeeds.
func (f *forwarder) tryClose() bool {
	f.mu.Lock()
	if time.Since(f.lastCheck) < f.cfg.CheckInterval {
		f.mu.Unlock()
		return false
	}
	f.lastCheck = time.Now()
	f.mu.Unlock()

	if f.probe != nil {
		ctx, cancel := context.WithTimeout(f.ctx, f.cfg.SendTimeout)
		err := f.probe(ctx)
		cancel()
		if err != nil {
			f.logger.Debug().Err(err).Msg("event bus still unavailable")
			return false
		}
	}

	f.mu.Lock()
	f.open = false
	f.failCount = 0
	f.mu.Unlock()
	f.logger.Info().Msg("event bus reachable again, resuming forwarding")
	return true
}

// tripOpen starts the forwarder with the breaker open, used when the backend
// is unreachable at startup.
func (f *forwarder) tripOpen() {
	f.mu.Lock()
	f.open = true
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

// stop drains nothing: queued events are discarded on shutdown.
func (f *forwarder) stop() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
}

// relay decodes a remote message and republishes it locally unless it came
// from this node.
func (f *forwarder) relay(local events.Publisher, data []byte) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to decode relayed event")
		return
	}
	if msg.NodeID == f.nodeID {
		return
	}
	if msg.Payload == nil {
		msg.Payload = events.Payload{}
	}
	msg.Payload["source_node"] = msg.NodeID
	local.Publish(msg.EventType, msg.Payload)
}
