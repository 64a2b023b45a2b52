package countdown

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnTimerUpdate(remaining int) { r.add(fmt.Sprintf("update:%d", remaining)) }
func (r *recorder) OnTimerFinished()            { r.add("finished") }
func (r *recorder) OnTimerCancelled()           { r.add("cancelled") }

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newManualTimer(t *testing.T, seconds int) (*Timer, *ManualTrigger, *recorder) {
	t.Helper()
	rec := &recorder{}
	trig := &ManualTrigger{}
	tm := New(rec, WithTrigger(trig))
	if err := tm.SetDuration(seconds); err != nil {
		t.Fatalf("SetDuration(%d): %v", seconds, err)
	}
	return tm, trig, rec
}

func fireAll(trig *ManualTrigger, limit int) int {
	n := 0
	for n < limit && trig.Fire() {
		n++
	}
	return n
}

func TestTimerEmitsOneEventPerSecond(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 3, 7, 60} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()
			tm, trig, rec := newManualTimer(t, n)
			if err := tm.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if got := fireAll(trig, n+10); got != n {
				t.Fatalf("trigger fired %d times, want %d", got, n)
			}

			want := make([]string, 0, n)
			for rem := n - 1; rem >= 1; rem-- {
				want = append(want, fmt.Sprintf("update:%d", rem))
			}
			want = append(want, "finished")
			if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
				t.Fatalf("events = %v, want %v", got, want)
			}
			if tm.State() != StateFinished {
				t.Fatalf("State = %v, want finished", tm.State())
			}
			if trig.Active() {
				t.Fatal("trigger still scheduled after finish")
			}
		})
	}
}

func TestTimerDurationThree(t *testing.T) {
	t.Parallel()
	tm, trig, rec := newManualTimer(t, 3)
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fireAll(trig, 10)
	want := []string{"update:2", "update:1", "finished"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTimerStopAfterFirstTick(t *testing.T) {
	t.Parallel()
	tm, trig, rec := newManualTimer(t, 5)
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !trig.Fire() {
		t.Fatal("expected first tick to fire")
	}
	tm.Stop()
	if trig.Fire() {
		t.Fatal("trigger fired after Stop")
	}
	tm.Stop()

	want := []string{"update:4", "cancelled"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	snap := tm.Snapshot()
	if snap.State != StateCancelled || snap.Remaining != 4 {
		t.Fatalf("snapshot = %+v, want cancelled with 4 remaining", snap)
	}
}

func TestTimerStaleTickAfterStopIsIgnored(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	var tick func()
	tm := New(rec, WithTrigger(triggerFunc(func(_ time.Duration, fn func()) func() {
		tick = fn
		return func() {}
	})))
	_ = tm.SetDuration(5)
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tm.Stop()
	// A firing already in flight when Stop ran completes without emitting.
	tick()

	want := []string{"cancelled"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTimerStopWhenNotRunningIsNoop(t *testing.T) {
	t.Parallel()
	tm, trig, rec := newManualTimer(t, 2)
	tm.Stop()
	if len(rec.snapshot()) != 0 {
		t.Fatalf("Stop on idle timer emitted %v", rec.snapshot())
	}

	_ = tm.Start()
	fireAll(trig, 5)
	before := rec.snapshot()
	tm.Stop()
	if got := rec.snapshot(); !reflect.DeepEqual(got, before) {
		t.Fatalf("Stop on finished timer emitted: %v", got[len(before):])
	}
}

func TestTimerNonPositiveDurationFinishesOnFirstTick(t *testing.T) {
	t.Parallel()
	for _, d := range []int{0, -3} {
		tm, trig, rec := newManualTimer(t, d)
		_ = tm.Start()
		if got := fireAll(trig, 5); got != 1 {
			t.Fatalf("duration %d: fired %d times, want 1", d, got)
		}
		if got := rec.snapshot(); !reflect.DeepEqual(got, []string{"finished"}) {
			t.Fatalf("duration %d: events = %v", d, got)
		}
	}
}

func TestTimerStartRules(t *testing.T) {
	t.Parallel()
	tm, trig, _ := newManualTimer(t, 2)
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tm.Start(); err != ErrRunning {
		t.Fatalf("second Start = %v, want ErrRunning", err)
	}
	if err := tm.SetDuration(9); err != ErrRunning {
		t.Fatalf("SetDuration while running = %v, want ErrRunning", err)
	}
	fireAll(trig, 5)
	if err := tm.Start(); err != ErrNotIdle {
		t.Fatalf("Start after finish = %v, want ErrNotIdle", err)
	}
	if err := tm.SetDuration(1); err != nil {
		t.Fatalf("SetDuration after finish: %v", err)
	}
	if err := tm.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if tm.Snapshot().Run != 2 {
		t.Fatalf("Run = %d, want 2", tm.Snapshot().Run)
	}
}

func TestTimerDefaultIntervalIsOneSecond(t *testing.T) {
	t.Parallel()
	tm, trig, _ := newManualTimer(t, 1)
	_ = tm.Start()
	if trig.Interval() != time.Second {
		t.Fatalf("interval = %v, want 1s", trig.Interval())
	}
}

func TestNewPanicsOnNilListener(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil listener")
		}
	}()
	New(nil)
}

func TestTimerWithCronTrigger(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	var mu sync.Mutex
	var updates []int
	tm := New(ListenerFuncs{
		Update: func(r int) {
			mu.Lock()
			updates = append(updates, r)
			mu.Unlock()
		},
		Finished: func() { close(done) },
	}, WithInterval(20*time.Millisecond))
	_ = tm.SetDuration(3)
	start := time.Now()
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not finish")
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("finished after %v, want at least 3 intervals", elapsed)
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(updates, []int{2, 1}) {
		t.Fatalf("updates = %v, want [2 1]", updates)
	}
}

func TestFixedDelayScheduleNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 10, 0, 0, 400_000_000, time.UTC)
	got := fixedDelaySchedule{delay: time.Second}.Next(base)
	if want := base.Add(time.Second); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

type triggerFunc func(time.Duration, func()) func()

func (f triggerFunc) Schedule(d time.Duration, fn func()) func() { return f(d, fn) }
