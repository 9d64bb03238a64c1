package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/player"
)

func TestPlaySingleStartsSegment(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loop := testLoops(2)[1]

	if err := s.PlaySingle(context.Background(), loop, false); err != nil {
		t.Fatalf("play single: %v", err)
	}
	assertCalls(t, fp.since(0), call{"seek", 10}, call{"set_rate", 1}, call{"play", 0})

	st := s.State()
	if st.Mode != ModeSingle || st.LoopID != loop.ID {
		t.Fatalf("unexpected state %+v", st)
	}
	if currentPoller(s) == nil {
		t.Fatal("expected an owned poller")
	}
}

func TestPlaySingleRepeatReseeksAtBoundary(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loop := testLoops(1)[0]
	ctx := context.Background()

	if err := s.PlaySingle(ctx, loop, true); err != nil {
		t.Fatalf("play single: %v", err)
	}

	fp.setTime(3)
	mark := fp.mark()
	pollOnce(s)
	if got := fp.since(mark); len(got) != 0 {
		t.Fatalf("no action expected before the boundary, got %v", got)
	}

	fp.setTime(loop.EndTime)
	pollOnce(s)
	assertCalls(t, fp.since(mark), call{"seek", loop.StartTime}, call{"set_rate", 1}, call{"play", 0})

	if st := s.State(); st.Mode != ModeSingle || !st.Repeat {
		t.Fatalf("expected to stay in repeating single mode, got %+v", st)
	}
}

func TestPlaySingleOnceStopsWithOnePause(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loop := testLoops(1)[0]

	if err := s.PlaySingle(context.Background(), loop, false); err != nil {
		t.Fatalf("play single: %v", err)
	}
	p := currentPoller(s)

	fp.setTime(loop.EndTime + 0.1)
	s.tick(p)

	if st := s.State(); st.Mode != ModeIdle {
		t.Fatalf("expected idle, got %s", st.Mode)
	}
	if n := fp.count("pause"); n != 1 {
		t.Fatalf("expected exactly one pause, got %d", n)
	}

	// A late tick from the finished poller must not pause again.
	s.tick(p)
	if n := fp.count("pause"); n != 1 {
		t.Fatalf("stale tick paused again: %d pauses", n)
	}
}

func TestSequenceAdvancesAndWraps(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loops := testLoops(3)
	ctx := context.Background()

	if err := s.PlaySequence(ctx, loops, selectIndices(0, 1, 2)); err != nil {
		t.Fatalf("play sequence: %v", err)
	}
	if st := s.State(); st.Cursor != 0 || st.LoopID != loops[0].ID {
		t.Fatalf("unexpected start state %+v", st)
	}

	fp.setTime(loops[0].EndTime)
	pollOnce(s)
	fp.setTime(loops[1].EndTime)
	pollOnce(s)
	if st := s.State(); st.Cursor != 2 {
		t.Fatalf("expected cursor 2, got %d", st.Cursor)
	}

	mark := fp.mark()
	fp.setTime(loops[2].EndTime)
	pollOnce(s)

	st := s.State()
	if st.Mode != ModeSequence {
		t.Fatalf("sequence must not stop at the end, got %s", st.Mode)
	}
	if st.Cursor != 0 || st.LoopID != loops[0].ID {
		t.Fatalf("expected wrap to cursor 0, got %+v", st)
	}
	assertCalls(t, fp.since(mark), call{"seek", loops[0].StartTime}, call{"set_rate", 1}, call{"play", 0})
	if fp.count("pause") != 0 {
		t.Fatal("wraparound must not pause")
	}
}

func TestPlaySequenceRequiresSelection(t *testing.T) {
	s, fp, _ := newTestScheduler(t)

	err := s.PlaySequence(context.Background(), testLoops(3), selectIndices())
	if !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	if s.State().Mode != ModeIdle || len(fp.since(0)) != 0 {
		t.Fatal("empty sequence must not touch state or player")
	}
}

func TestPlaySequenceOrdersByIndex(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	loops := testLoops(4)
	var reordered []models.Loop
	for _, i := range []int{3, 0, 2, 1} {
		reordered = append(reordered, loops[i])
	}

	if err := s.PlaySequence(context.Background(), reordered, selectIndices(3, 1)); err != nil {
		t.Fatalf("play sequence: %v", err)
	}
	st := s.State()
	if len(st.Queue) != 2 || st.Queue[0] != loops[1].ID || st.Queue[1] != loops[3].ID {
		t.Fatalf("queue not ordered by index: %v", st.Queue)
	}
}

func TestStartingPlaybackReplacesPoller(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loops := testLoops(3)
	ctx := context.Background()

	if err := s.PlaySingle(ctx, loops[0], false); err != nil {
		t.Fatalf("play single: %v", err)
	}
	first := currentPoller(s)

	if err := s.PlaySequence(ctx, loops, selectIndices(1, 2)); err != nil {
		t.Fatalf("play sequence: %v", err)
	}
	second := currentPoller(s)
	if first == second {
		t.Fatal("expected a new poller")
	}

	// The replaced poller sees the old loop's boundary but must do nothing.
	mark := fp.mark()
	fp.setTime(loops[0].EndTime)
	s.tick(first)
	if got := fp.since(mark); len(got) != 0 {
		t.Fatalf("stale poller caused side effects: %v", got)
	}

	if err := s.PlaySingle(ctx, loops[2], true); err != nil {
		t.Fatalf("play single: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.ActivePollers() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected exactly one active poller, got %d", s.ActivePollers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopFromAnyMode(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loops := testLoops(2)
	ctx := context.Background()

	if err := s.PlaySequence(ctx, loops, selectIndices(0, 1)); err != nil {
		t.Fatalf("play sequence: %v", err)
	}
	p := currentPoller(s)
	s.Stop(ctx)

	st := s.State()
	if st.Mode != ModeIdle || st.Queue != nil || st.Cursor != -1 {
		t.Fatalf("expected clean idle state, got %+v", st)
	}
	if fp.count("pause") != 1 {
		t.Fatalf("expected one pause, got %d", fp.count("pause"))
	}

	mark := fp.mark()
	fp.setTime(loops[0].EndTime)
	s.tick(p)
	if got := fp.since(mark); len(got) != 0 {
		t.Fatalf("tick after stop caused side effects: %v", got)
	}
}

func TestAdjustTimeClampsAndKeepsMode(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loop := testLoops(2)[1]
	ctx := context.Background()

	if err := s.PlaySingle(ctx, loop, true); err != nil {
		t.Fatalf("play single: %v", err)
	}
	p := currentPoller(s)

	fp.setTime(11)
	if err := s.AdjustTime(ctx, -30); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if c, _ := fp.last("seek"); c.value != 0 {
		t.Fatalf("expected clamp to 0, got %v", c.value)
	}

	fp.setTime(11)
	if err := s.AdjustTime(ctx, 2.5); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if c, _ := fp.last("seek"); c.value != 13.5 {
		t.Fatalf("expected seek to 13.5, got %v", c.value)
	}

	if currentPoller(s) != p || s.State().Mode != ModeSingle {
		t.Fatal("adjust must not change mode or poller")
	}
}

func TestSkipUsesStep(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	ctx := context.Background()

	if err := s.SetSkipStep(2); err != nil {
		t.Fatalf("set skip step: %v", err)
	}
	if err := s.SetSkipStep(0); !errors.Is(err, ErrInvalidSkipStep) {
		t.Fatalf("expected ErrInvalidSkipStep, got %v", err)
	}

	fp.setTime(10)
	if err := s.Skip(ctx, true); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if c, _ := fp.last("seek"); c.value != 12 {
		t.Fatalf("expected 12, got %v", c.value)
	}
	if err := s.Skip(ctx, false); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if c, _ := fp.last("seek"); c.value != 10 {
		t.Fatalf("expected 10, got %v", c.value)
	}
}

func TestSetPlaybackRateAppliesImmediately(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loop := testLoops(1)[0]
	ctx := context.Background()

	if err := s.PlaySingle(ctx, loop, true); err != nil {
		t.Fatalf("play single: %v", err)
	}
	mark := fp.mark()
	if err := s.SetPlaybackRate(ctx, 0.75); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	assertCalls(t, fp.since(mark), call{"set_rate", 0.75})
	if st := s.State(); st.Mode != ModeSingle || st.PlaybackRate != 0.75 {
		t.Fatalf("unexpected state %+v", st)
	}

	// The stored rate is reapplied on the next repeat.
	fp.setTime(loop.EndTime)
	pollOnce(s)
	if c, _ := fp.last("set_rate"); c.value != 0.75 {
		t.Fatalf("expected rate 0.75 on repeat, got %v", c.value)
	}

	for _, bad := range []float64{0, -1} {
		if err := s.SetPlaybackRate(ctx, bad); !errors.Is(err, ErrInvalidRate) {
			t.Fatalf("rate %v: expected ErrInvalidRate, got %v", bad, err)
		}
	}
}

func TestPlayerNotReadyLeavesStateUnchanged(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loops := testLoops(2)
	ctx := context.Background()

	fp.setErr(player.ErrNotReady)
	if err := s.PlaySingle(ctx, loops[0], true); !errors.Is(err, player.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if s.State().Mode != ModeIdle || currentPoller(s) != nil {
		t.Fatal("failed play must not change mode")
	}

	fp.setErr(nil)
	if err := s.PlaySequence(ctx, loops, selectIndices(0, 1)); err != nil {
		t.Fatalf("play sequence: %v", err)
	}
	p := currentPoller(s)

	fp.setErr(errors.New("socket reset"))
	if err := s.PlaySingle(ctx, loops[1], false); !errors.Is(err, player.ErrNotReady) {
		t.Fatalf("expected ErrNotReady for generic failure, got %v", err)
	}
	if st := s.State(); st.Mode != ModeSequence || currentPoller(s) != p {
		t.Fatalf("failed play must keep the running sequence, got %+v", st)
	}

	// Ticks that cannot read time are skipped.
	pollOnce(s)
	if st := s.State(); st.Mode != ModeSequence || st.Cursor != 0 {
		t.Fatalf("unreadable tick changed state: %+v", st)
	}
}

func TestPlayerPanicIsRecovered(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loop := testLoops(1)[0]
	ctx := context.Background()

	fp.setPanic("seek")
	if err := s.PlaySingle(ctx, loop, false); !errors.Is(err, player.ErrNotReady) {
		t.Fatalf("expected ErrNotReady from panic, got %v", err)
	}

	fp.setPanic("")
	if err := s.PlaySingle(ctx, loop, false); err != nil {
		t.Fatalf("play single: %v", err)
	}
	fp.setPanic("current_time")
	pollOnce(s)
	if s.State().Mode != ModeSingle {
		t.Fatal("panicking time read must be a no-op")
	}
}

func TestBoundaryPublishesEvent(t *testing.T) {
	s, fp, bus := newTestScheduler(t)
	sub := bus.Subscribe(events.EventPlaybackBoundary)
	loop := testLoops(1)[0]

	if err := s.PlaySingle(context.Background(), loop, true); err != nil {
		t.Fatalf("play single: %v", err)
	}
	fp.setTime(loop.EndTime)
	pollOnce(s)

	select {
	case p := <-sub:
		if p["action"] != ActionRepeat || p["loop_id"] != loop.ID {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected boundary event")
	}
}

func TestLoadMediaStopsPlaybackAndReappliesRate(t *testing.T) {
	s, fp, _ := newTestScheduler(t)
	loops := testLoops(2)
	ctx := context.Background()

	if err := s.SetPlaybackRate(ctx, 0.5); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := s.PlaySingle(ctx, loops[0], true); err != nil {
		t.Fatalf("play single: %v", err)
	}
	mark := fp.mark()
	if err := s.LoadMedia(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("load media: %v", err)
	}

	assertCalls(t, fp.since(mark), call{"pause", 0}, call{"load", 0}, call{"set_rate", 0.5})
	if st := s.State(); st.Mode != ModeIdle {
		t.Fatalf("expected idle after load, got %s", st.Mode)
	}

	mark = fp.mark()
	if err := s.LoadMedia(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("load media while idle: %v", err)
	}
	assertCalls(t, fp.since(mark), call{"load", 0}, call{"set_rate", 0.5})
}
