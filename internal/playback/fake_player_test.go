package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/player"
)

type call struct {
	op    string
	value float64
}

// fakePlayer records every successful command. Reads are counted separately.
type fakePlayer struct {
	mu      sync.Mutex
	calls   []call
	reads   int
	now     float64
	err     error
	panicOn string
	events  chan player.StateChange
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan player.StateChange, 8)}
}

func (f *fakePlayer) do(op string, value float64, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == op {
		panic("boom: " + op)
	}
	if f.err != nil {
		return f.err
	}
	if apply != nil {
		apply()
	}
	f.calls = append(f.calls, call{op: op, value: value})
	return nil
}

func (f *fakePlayer) Seek(ctx context.Context, seconds float64, allowAhead bool) error {
	return f.do("seek", seconds, func() { f.now = seconds })
}

func (f *fakePlayer) Play(ctx context.Context) error  { return f.do("play", 0, nil) }
func (f *fakePlayer) Pause(ctx context.Context) error { return f.do("pause", 0, nil) }

func (f *fakePlayer) CurrentTime(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "current_time" {
		panic("boom: current_time")
	}
	if f.err != nil {
		return 0, f.err
	}
	f.reads++
	return f.now, nil
}

func (f *fakePlayer) SetPlaybackRate(ctx context.Context, rate float64) error {
	return f.do("set_rate", rate, nil)
}

func (f *fakePlayer) LoadMedia(ctx context.Context, mediaID string) error {
	return f.do("load", 0, nil)
}

func (f *fakePlayer) Events() <-chan player.StateChange { return f.events }

func (f *fakePlayer) Close() error { return nil }

func (f *fakePlayer) setTime(t float64) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fakePlayer) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakePlayer) setPanic(op string) {
	f.mu.Lock()
	f.panicOn = op
	f.mu.Unlock()
}

func (f *fakePlayer) mark() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePlayer) since(mark int) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls[mark:]...)
}

func (f *fakePlayer) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakePlayer) last(op string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].op == op {
			return f.calls[i], true
		}
	}
	return call{}, false
}

// newTestScheduler returns a scheduler whose poller never fires on its own;
// tests drive boundaries with pollOnce.
func newTestScheduler(t *testing.T) (*Scheduler, *fakePlayer, *events.Bus) {
	t.Helper()
	fp := newFakePlayer()
	bus := events.NewBus()
	s := New(fp, bus, Config{PollInterval: time.Hour}, zerolog.Nop())
	t.Cleanup(s.Close)
	return s, fp, bus
}

func currentPoller(s *Scheduler) *poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode.poller()
}

func pollOnce(s *Scheduler) {
	s.tick(currentPoller(s))
}

// testLoops builds n loops with index i spanning [10i, 10i+5].
func testLoops(n int) []models.Loop {
	loops := make([]models.Loop, n)
	for i := range loops {
		loops[i] = models.Loop{
			ID:        string(rune('a' + i)),
			Index:     i,
			Name:      "Loop",
			StartTime: float64(10 * i),
			EndTime:   float64(10*i + 5),
		}
	}
	return loops
}

func selectIndices(indices ...int) func(models.Loop) bool {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return func(l models.Loop) bool { return set[l.Index] }
}

func assertCalls(t *testing.T, got []call, want ...call) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}
