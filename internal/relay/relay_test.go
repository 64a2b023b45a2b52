package relay

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"eggtimer/internal/countdown"
	"eggtimer/internal/eventbus"
	logx "eggtimer/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	notify chan struct{}
}

func newRecorder() *recorder { return &recorder{notify: make(chan struct{}, 64)} }

func (r *recorder) OnTimerUpdate(remaining int) { r.add(fmt.Sprintf("update:%d", remaining)) }
func (r *recorder) OnTimerFinished()            { r.add("finished") }
func (r *recorder) OnTimerCancelled()           { r.add("cancelled") }

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitN(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(r.snapshot()) < n {
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, r.snapshot())
		}
	}
	return r.snapshot()
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		msg     Message
		action  string
		hasRem  bool
		wantRem int
	}{
		{name: "update", msg: Update(42), action: ActionUpdate, hasRem: true, wantRem: 42},
		{name: "finished", msg: Finished(), action: ActionFinished},
		{name: "cancelled", msg: Cancelled(), action: ActionCancelled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := Encode(tt.msg)
			if env.Action != tt.action {
				t.Fatalf("Action = %q, want %q", env.Action, tt.action)
			}
			if (env.Remaining != nil) != tt.hasRem {
				t.Fatalf("Remaining set = %v, want %v", env.Remaining != nil, tt.hasRem)
			}
			if tt.hasRem && *env.Remaining != tt.wantRem {
				t.Fatalf("Remaining = %d, want %d", *env.Remaining, tt.wantRem)
			}
			got, ok := Decode(env)
			if !ok || got != tt.msg {
				t.Fatalf("Decode = %v (ok=%v), want %v", got, ok, tt.msg)
			}
		})
	}
}

func TestDecodeUnknownAndMissingField(t *testing.T) {
	t.Parallel()
	if _, ok := Decode(Envelope{Action: "eggtimer.timer.paused"}); ok {
		t.Fatal("unknown action should not decode")
	}
	m, ok := Decode(Envelope{Action: ActionUpdate})
	if !ok || m.Kind() != KindUpdate || m.Remaining() != 0 {
		t.Fatalf("update without field = %v (ok=%v), want update(0)", m, ok)
	}
}

func TestWireFormat(t *testing.T) {
	t.Parallel()
	b, err := MarshalMessage(Update(7))
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}
	if string(b) != `{"action":"eggtimer.timer.update","remaining_seconds":7}` {
		t.Fatalf("wire = %s", b)
	}
	b, _ = MarshalMessage(Finished())
	if string(b) != `{"action":"eggtimer.timer.finished"}` {
		t.Fatalf("wire = %s", b)
	}
	if _, err := MarshalMessage(Message{}); err == nil {
		t.Fatal("expected error for invalid message")
	}
	env, err := UnmarshalEnvelope([]byte(`{"action":"eggtimer.timer.update","remaining_seconds":3}`))
	if err != nil || env.Action != ActionUpdate || *env.Remaining != 3 {
		t.Fatalf("UnmarshalEnvelope = %+v, %v", env, err)
	}
	if _, err := UnmarshalEnvelope([]byte(`{`)); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestFilterListsExactlyThreeNames(t *testing.T) {
	t.Parallel()
	f := NewFilter()
	want := []string{ActionUpdate, ActionFinished, ActionCancelled}
	if got := f.Actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Actions = %v, want %v", got, want)
	}
	f.Actions()[0] = "mutated"
	if !f.Matches(ActionUpdate) {
		t.Fatal("Actions must return a copy")
	}
	if f.Matches("eggtimer.timer.paused") {
		t.Fatal("filter matched an unknown name")
	}
}

func TestReceiverDeliverIgnoresUnknown(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	r := NewReceiver(rec, logx.Nop())
	if r.Deliver(Envelope{Action: "something.else"}) {
		t.Fatal("unknown envelope should be ignored")
	}
	rem := 9
	if !r.Deliver(Envelope{Action: ActionUpdate, Remaining: &rem}) {
		t.Fatal("update should be delivered")
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, []string{"update:9"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestRelayAcrossBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	rec := newRecorder()
	run := NewReceiver(rec, logx.Nop()).Subscribe(bus, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	// Noise on the bus must not reach the listener.
	bus.Publish(eventbus.Event{Type: "other", Data: "x"})
	bus.Publish(eventbus.Event{Type: ActionFinished, Data: "not an envelope"})

	trig := &countdown.ManualTrigger{}
	tm := countdown.New(NewEmitter(bus), countdown.WithTrigger(trig))
	_ = tm.SetDuration(5)
	_ = tm.Start()
	trig.Fire()
	tm.Stop()
	trig.Fire()

	want := []string{"update:4", "cancelled"}
	if got := rec.waitN(t, 2); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("receiver loop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("receiver loop did not stop")
	}
}

func TestReceiverDrainsQueuedOnCancel(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	rec := newRecorder()
	run := NewReceiver(rec, logx.Nop()).Subscribe(bus, 8)

	em := NewEmitter(bus)
	em.OnTimerUpdate(1)
	em.OnTimerCancelled()

	// Loop starts with ctx already done; queued envelopes still arrive.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx); err != nil {
		t.Fatalf("receiver loop: %v", err)
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, []string{"update:1", "cancelled"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestFanoutPreservesOrder(t *testing.T) {
	t.Parallel()
	a, b := newRecorder(), newRecorder()
	f := Fanout{a, b}
	f.OnTimerUpdate(1)
	f.OnTimerFinished()
	f.OnTimerCancelled()
	want := []string{"update:1", "finished", "cancelled"}
	if !reflect.DeepEqual(a.snapshot(), want) || !reflect.DeepEqual(b.snapshot(), want) {
		t.Fatalf("fanout = %v / %v", a.snapshot(), b.snapshot())
	}
}
