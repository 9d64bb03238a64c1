/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/config"
)

// Open returns the forwarder selected by cfg.EventBus, or nil for the
// in-memory bus.
func Open(cfg *config.Config, logger zerolog.Logger) (Forwarder, error) {
	nodeID := cfg.InstanceID
	if nodeID == "" {
		nodeID = NewNodeID()
	}

	switch cfg.EventBus {
	case config.EventBusMemory, "":
		return nil, nil
	case config.EventBusRedis:
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return NewRedisForwarder(rc, nodeID, logger), nil
	case config.EventBusNATS:
		nc := DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nf, err := NewNATSForwarder(nc, nodeID, logger)
		if err != nil {
			return nil, err
		}
		return nf, nil
	default:
		return nil, fmt.Errorf("unknown event bus: %s", cfg.EventBus)
	}
}
