package playback

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/player"
)

func TestWatchPlayerAppliesRateWhenReady(t *testing.T) {
	fp := newFakePlayer()
	bus := events.NewBus()
	s := New(fp, bus, Config{PollInterval: time.Hour, PlaybackRate: 0.75}, zerolog.Nop())
	t.Cleanup(s.Close)

	sub := bus.Subscribe(events.EventPlayerState)
	defer bus.Unsubscribe(events.EventPlayerState, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.WatchPlayer(ctx)
	}()

	fp.events <- player.StateChange{State: player.StateUnstarted, Ready: false, At: time.Now()}
	fp.events <- player.StateChange{State: player.StateCued, Ready: true, At: time.Now()}

	for i := 0; i < 2; i++ {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatalf("expected player.state event %d", i+1)
		}
	}

	deadline := time.Now().Add(time.Second)
	for fp.count("set_rate") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got, ok := fp.last("set_rate")
	if !ok || got.value != 0.75 {
		t.Fatalf("expected rate 0.75 applied on ready, got %+v (ok=%v)", got, ok)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchPlayer did not return after cancel")
	}
}

func TestWatchPlayerReturnsWhenStreamCloses(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	close(fp.events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.WatchPlayer(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchPlayer did not return after the stream closed")
	}
}
