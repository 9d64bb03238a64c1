/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
)

// RedisChannelPrefix is prepended to the event type to form the channel name.
const RedisChannelPrefix = "looplearn:events:"

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
	QueueSize     int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      4,
		MinIdleConns:  1,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
		QueueSize:     256,
	}
}

// RedisForwarder publishes events to Redis pub/sub channels.
type RedisForwarder struct {
	*forwarder
	client *redis.Client
}

// NewRedisForwarder connects to Redis. If Redis cannot be reached the
// forwarder starts paused and retries on the breaker interval.
func NewRedisForwarder(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisForwarder {
	logger = logger.With().Str("component", "eventbus").Str("backend", "redis").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	send := func(ctx context.Context, eventType events.EventType, data []byte) error {
		return client.Publish(ctx, RedisChannelPrefix+string(eventType), data).Err()
	}
	probe := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}

	rf := &RedisForwarder{
		forwarder: newForwarder("redis", nodeID, breakerConfig{
			QueueSize:     cfg.QueueSize,
			SendTimeout:   cfg.WriteTimeout,
			MaxFailures:   cfg.MaxFailures,
			CheckInterval: cfg.CheckInterval,
		}, logger, send, probe),
		client: client,
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, event forwarding paused")
		rf.tripOpen()
	} else {
		logger.Info().Str("addr", cfg.Addr).Msg("Redis event forwarding initialized")
	}
	return rf
}

// Relay subscribes to every looplearn channel and republishes events from
// other nodes into local until ctx ends.
func (rf *RedisForwarder) Relay(ctx context.Context, local events.Publisher) error {
	pubsub := rf.client.PSubscribe(ctx, RedisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()

	rf.logger.Debug().Msg("started Redis relay")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				rf.logger.Warn().Msg("Redis relay channel closed")
				return nil
			}
			if !strings.HasPrefix(msg.Channel, RedisChannelPrefix) {
				continue
			}
			rf.relay(local, []byte(msg.Payload))
		}
	}
}

// Close stops forwarding and closes the client.
func (rf *RedisForwarder) Close() error {
	rf.logger.Info().Msg("closing Redis event forwarder")
	rf.stop()
	return rf.client.Close()
}
