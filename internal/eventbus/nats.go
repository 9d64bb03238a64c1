/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
)

// NATSSubjectPrefix is prepended to the event type to form the subject.
const NATSSubjectPrefix = "looplearn.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string
	Name  string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
	QueueSize     int
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "looplearn",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
		QueueSize:     256,
	}
}

// NATSForwarder publishes events on NATS subjects.
type NATSForwarder struct {
	*forwarder
	conn *nats.Conn
}

// NewNATSForwarder connects to NATS. The connection keeps retrying in the
// background when the server is down at startup; publishes are buffered by
// the client until it reconnects.
func NewNATSForwarder(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSForwarder, error) {
	logger = logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()

	opts := []nats.Option{
		nats.Name(cfg.Name + "-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	send := func(_ context.Context, eventType events.EventType, data []byte) error {
		return nc.Publish(NATSSubjectPrefix+string(eventType), data)
	}
	probe := func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats status %s", nc.Status())
		}
		return nil
	}

	nf := &NATSForwarder{
		forwarder: newForwarder("nats", nodeID, breakerConfig{
			QueueSize:     cfg.QueueSize,
			SendTimeout:   cfg.Timeout,
			MaxFailures:   cfg.MaxFailures,
			CheckInterval: cfg.CheckInterval,
		}, logger, send, probe),
		conn: nc,
	}

	logger.Info().Str("url", cfg.URL).Bool("connected", nc.IsConnected()).Msg("NATS event forwarding initialized")
	return nf, nil
}

// Relay subscribes to looplearn.events.> and republishes events from other
// nodes into local until ctx ends.
func (nf *NATSForwarder) Relay(ctx context.Context, local events.Publisher) error {
	sub, err := nf.conn.Subscribe(NATSSubjectPrefix+">", func(msg *nats.Msg) {
		nf.relay(local, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s>: %w", NATSSubjectPrefix, err)
	}
	defer sub.Unsubscribe()

	nf.logger.Debug().Msg("started NATS relay")
	<-ctx.Done()
	return nil
}

// Close stops forwarding, flushes pending publishes and closes the connection.
func (nf *NATSForwarder) Close() error {
	nf.logger.Info().Msg("closing NATS event forwarder")
	nf.stop()
	if err := nf.conn.Drain(); err != nil {
		nf.conn.Close()
		return err
	}
	return nil
}
