/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Playback scheduler
	EventPlaybackState    EventType = "playback.state"
	EventPlaybackBoundary EventType = "playback.boundary"
	EventQueueRefreshed   EventType = "playback.queue"

	// External player
	EventPlayerState EventType = "player.state"
	EventPlayerError EventType = "player.error"

	// Editor session
	EventListChanged      EventType = "list.changed"
	EventSelectionChanged EventType = "selection.changed"

	// Library
	EventLibraryChanged EventType = "library.changed"
	EventLibraryLoaded  EventType = "library.loaded"
	EventLibrarySaved   EventType = "library.saved"
)

// AllEventTypes lists every type, in the order the event stream subscribes them.
var AllEventTypes = []EventType{
	EventPlaybackState,
	EventPlaybackBoundary,
	EventQueueRefreshed,
	EventPlayerState,
	EventPlayerError,
	EventListChanged,
	EventSelectionChanged,
	EventLibraryChanged,
	EventLibraryLoaded,
	EventLibrarySaved,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the write side of a bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers without blocking. A subscriber whose
// buffer is full misses the event.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}

// Fanout publishes to several publishers in order. Nil entries are skipped.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(eventType EventType, payload Payload) {
	for _, p := range f {
		if p != nil {
			p.Publish(eventType, payload)
		}
	}
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(EventType, Payload) {}
