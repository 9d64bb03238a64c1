package events

import "testing"

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlaybackState)
	other := bus.Subscribe(EventListChanged)

	bus.Publish(EventPlaybackState, Payload{"mode": "single"})

	select {
	case p := <-sub:
		if p["mode"] != "single" {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected payload on subscriber")
	}

	select {
	case p := <-other:
		t.Fatalf("unexpected delivery to other type: %v", p)
	default:
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlaybackBoundary)
	for i := 0; i < 20; i++ {
		bus.Publish(EventPlaybackBoundary, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected full buffer, got %d/%d", len(sub), cap(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlayerState)
	bus.Unsubscribe(EventPlayerState, sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(EventPlayerState, Payload{})
}

func TestFanoutSkipsNil(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventLibrarySaved)
	Fanout{nil, bus, Discard}.Publish(EventLibrarySaved, Payload{"name": "a"})
	if len(sub) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sub))
	}
}
