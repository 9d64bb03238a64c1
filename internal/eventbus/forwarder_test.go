package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/config"
	"github.com/friendsincode/looplearn/internal/events"
)

type recordingSender struct {
	mu     sync.Mutex
	fail   bool
	sent   []events.EventType
	probes int
}

func (r *recordingSender) send(_ context.Context, eventType events.EventType, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("unreachable")
	}
	r.sent = append(r.sent, eventType)
	return nil
}

func (r *recordingSender) probe(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes++
	if r.fail {
		return errors.New("unreachable")
	}
	return nil
}

func (r *recordingSender) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *recordingSender) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestForwarderDeliversInOrder(t *testing.T) {
	rs := &recordingSender{}
	f := newForwarder("test", "node-a", breakerConfig{}, zerolog.Nop(), rs.send, rs.probe)
	defer f.stop()

	f.Publish(events.EventPlaybackState, events.Payload{"mode": "single"})
	f.Publish(events.EventPlaybackBoundary, events.Payload{"action": "repeat"})
	f.Publish(events.EventListChanged, events.Payload{})

	waitFor(t, func() bool { return rs.sentCount() == 3 })
	rs.mu.Lock()
	defer rs.mu.Unlock()
	want := []events.EventType{events.EventPlaybackState, events.EventPlaybackBoundary, events.EventListChanged}
	for i := range want {
		if rs.sent[i] != want[i] {
			t.Fatalf("sent = %v, want %v", rs.sent, want)
		}
	}
}

func TestForwarderBreakerOpensAndRecovers(t *testing.T) {
	rs := &recordingSender{fail: true}
	f := newForwarder("test", "node-a", breakerConfig{MaxFailures: 2, CheckInterval: 50 * time.Millisecond}, zerolog.Nop(), rs.send, rs.probe)
	defer f.stop()

	f.Publish(events.EventPlaybackState, nil)
	f.Publish(events.EventPlaybackState, nil)
	waitFor(t, f.isOpen)

	rs.setFail(false)
	// Inside the check interval the breaker skips without probing.
	f.Publish(events.EventPlaybackState, nil)
	time.Sleep(20 * time.Millisecond)
	if rs.sentCount() != 0 {
		t.Fatal("expected events to be skipped while the breaker is open")
	}

	time.Sleep(60 * time.Millisecond)
	f.Publish(events.EventPlaybackState, nil)
	waitFor(t, func() bool { return rs.sentCount() == 1 })
	if f.isOpen() {
		t.Fatal("breaker should close after a successful probe")
	}
}

func TestForwarderPublishNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	send := func(ctx context.Context, _ events.EventType, _ []byte) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}
	f := newForwarder("test", "node-a", breakerConfig{QueueSize: 1}, zerolog.Nop(), send, nil)
	defer func() {
		close(block)
		f.stop()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			f.Publish(events.EventPlaybackState, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
}

func TestRelaySkipsOwnNode(t *testing.T) {
	f := newForwarder("test", "node-a", breakerConfig{}, zerolog.Nop(), (&recordingSender{}).send, nil)
	defer f.stop()

	bus := events.NewBus()
	sub := bus.Subscribe(events.EventPlaybackState)

	own, _ := marshalMessage(events.EventPlaybackState, events.Payload{"mode": "idle"}, "node-a")
	f.relay(bus, own)
	select {
	case p := <-sub:
		t.Fatalf("own message must not be relayed, got %v", p)
	default:
	}

	remote, _ := marshalMessage(events.EventPlaybackState, events.Payload{"mode": "sequence"}, "node-b")
	f.relay(bus, remote)
	select {
	case p := <-sub:
		if p["mode"] != "sequence" || p["source_node"] != "node-b" {
			t.Fatalf("unexpected relayed payload %v", p)
		}
	default:
		t.Fatal("expected remote message to be relayed")
	}

	f.relay(bus, []byte("not json"))
}

func TestOpenMemoryReturnsNil(t *testing.T) {
	fw, err := Open(&configForTest, zerolog.Nop())
	if err != nil || fw != nil {
		t.Fatalf("expected nil forwarder for memory bus, got %v, %v", fw, err)
	}
}

var configForTest = config.Config{EventBus: config.EventBusMemory}
