package relay

import (
	"context"

	"eggtimer/internal/countdown"
	"eggtimer/internal/eventbus"
	logx "eggtimer/pkg/logx"
)

// Emitter is the sending side: a countdown.Listener that publishes every
// callback on the bus as an Envelope. Publishing never blocks the timer.
type Emitter struct {
	bus eventbus.Bus
}

func NewEmitter(bus eventbus.Bus) *Emitter { return &Emitter{bus: bus} }

func (e *Emitter) OnTimerUpdate(remaining int) { e.publish(Update(remaining)) }
func (e *Emitter) OnTimerFinished()            { e.publish(Finished()) }
func (e *Emitter) OnTimerCancelled()           { e.publish(Cancelled()) }

func (e *Emitter) publish(m Message) {
	env := Encode(m)
	e.bus.Publish(eventbus.Event{Type: env.Action, Data: env})
}

// Receiver is the receiving side: it decodes envelopes and calls its listener.
type Receiver struct {
	listener countdown.Listener
	filter   Filter
	log      logx.Logger
}

func NewReceiver(l countdown.Listener, log logx.Logger) *Receiver {
	if l == nil {
		panic("relay: nil listener")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Receiver{listener: l, filter: NewFilter(), log: log}
}

// Filter returns the names this receiver registers for.
func (r *Receiver) Filter() Filter { return r.filter }

// Deliver decodes e and invokes the matching callback. It reports false when
// the envelope was ignored.
func (r *Receiver) Deliver(e Envelope) bool {
	if !r.filter.Matches(e.Action) {
		r.log.Trace("relay envelope ignored", logx.String("action", e.Action))
		return false
	}
	m, ok := Decode(e)
	if !ok {
		return false
	}
	return m.Dispatch(r.listener)
}

// Subscribe registers with bus immediately and returns the loop that delivers
// matching events to the listener. Run the loop on the listener's goroutine;
// it returns when ctx is done or the subscription is closed. Envelopes already
// queued when ctx is done are still delivered.
func (r *Receiver) Subscribe(bus eventbus.Bus, buffer int) func(ctx context.Context) error {
	ch, unsub := bus.Subscribe(buffer, r.filter.Actions()...)
	return func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				r.drain(ch)
				return nil
			case ev, ok := <-ch:
				if !ok {
					return nil
				}
				r.deliverEvent(ev)
			}
		}
	}
}

func (r *Receiver) drain(ch <-chan eventbus.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.deliverEvent(ev)
		default:
			return
		}
	}
}

func (r *Receiver) deliverEvent(ev eventbus.Event) {
	env, ok := ev.Data.(Envelope)
	if !ok {
		r.log.Debug("relay event without envelope", logx.String("type", ev.Type))
		return
	}
	r.Deliver(env)
}

// Fanout forwards every callback to each listener in order.
type Fanout []countdown.Listener

func (f Fanout) OnTimerUpdate(remaining int) {
	for _, l := range f {
		l.OnTimerUpdate(remaining)
	}
}

func (f Fanout) OnTimerFinished() {
	for _, l := range f {
		l.OnTimerFinished()
	}
}

func (f Fanout) OnTimerCancelled() {
	for _, l := range f {
		l.OnTimerCancelled()
	}
}
