package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"eggtimer/internal/countdown"
	"eggtimer/internal/relay"
	kit "eggtimer/internal/transport"
	logx "eggtimer/pkg/logx"
)

const (
	statusCacheSize = 64
	flushTimeout    = 3 * time.Second
)

type statusEvent struct {
	msg    relay.Message
	target kit.ChatTarget
}

// Observer mirrors timer notifications into one status message per chat:
// the first update of a run sends it, later updates edit it in place and the
// final state is written once. Callbacks only queue; Run does the network I/O.
//
// Consecutive updates for the same chat coalesce so a slow chat API never
// backs up the relay.
type Observer struct {
	m       kit.Messenger
	log     logx.Logger
	limiter *rate.Limiter
	refs    *lru.Cache[int64, kit.MessageRef]

	mu      sync.Mutex
	target  kit.ChatTarget
	pending []statusEvent
	wake    chan struct{}
}

func NewObserver(m kit.Messenger, editsPerSec int, log logx.Logger) *Observer {
	if editsPerSec <= 0 {
		editsPerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	refs, _ := lru.New[int64, kit.MessageRef](statusCacheSize)
	return &Observer{
		m:       m,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(editsPerSec), 1),
		refs:    refs,
		wake:    make(chan struct{}, 1),
	}
}

// SetTarget chooses the chat that receives the next notifications.
func (o *Observer) SetTarget(t kit.ChatTarget) {
	o.mu.Lock()
	o.target = t
	o.mu.Unlock()
}

func (o *Observer) Target() kit.ChatTarget {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

func (o *Observer) OnTimerUpdate(remaining int) { o.enqueue(relay.Update(remaining)) }
func (o *Observer) OnTimerFinished()            { o.enqueue(relay.Finished()) }
func (o *Observer) OnTimerCancelled()           { o.enqueue(relay.Cancelled()) }

func (o *Observer) enqueue(m relay.Message) {
	o.mu.Lock()
	if o.target.IsZero() {
		o.mu.Unlock()
		return
	}
	ev := statusEvent{msg: m, target: o.target}
	if n := len(o.pending); n > 0 && m.Kind() == relay.KindUpdate {
		last := o.pending[n-1]
		if last.msg.Kind() == relay.KindUpdate && last.target == ev.target {
			o.pending[n-1] = ev
			o.mu.Unlock()
			o.signal()
			return
		}
	}
	o.pending = append(o.pending, ev)
	o.mu.Unlock()
	o.signal()
}

func (o *Observer) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Observer) next() (statusEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return statusEvent{}, false
	}
	ev := o.pending[0]
	o.pending[0] = statusEvent{}
	o.pending = o.pending[1:]
	return ev, true
}

// Run renders queued notifications until ctx is done. Finished and Cancelled
// events still queued at that point are written before it returns.
func (o *Observer) Run(ctx context.Context) error {
	for {
		for {
			ev, ok := o.next()
			if !ok {
				break
			}
			if err := o.limiter.Wait(ctx); err != nil {
				o.flush(ev)
				return nil
			}
			o.render(ctx, ev)
		}
		select {
		case <-ctx.Done():
			o.flush()
			return nil
		case <-o.wake:
		}
	}
}

// flush renders the terminal events among held and the queue, skipping
// updates and the rate limit.
func (o *Observer) flush(held ...statusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		var ev statusEvent
		if len(held) > 0 {
			ev, held = held[0], held[1:]
		} else {
			var ok bool
			if ev, ok = o.next(); !ok {
				return
			}
		}
		if ev.msg.Kind() == relay.KindUpdate {
			continue
		}
		o.render(ctx, ev)
	}
}

func (o *Observer) render(ctx context.Context, ev statusEvent) {
	text := statusText(ev.msg)
	chat := ev.target.ChatID
	terminal := ev.msg.Kind() != relay.KindUpdate

	if ref, ok := o.refs.Get(chat); ok {
		err := o.m.EditText(ctx, ref, text, nil)
		if err == nil || isNotModified(err) {
			if terminal {
				o.refs.Remove(chat)
			}
			return
		}
		o.log.Warn("status edit failed; sending new message", logx.Int64("chat_id", chat), logx.Err(err))
		o.refs.Remove(chat)
	}

	ref, err := o.m.SendText(ctx, ev.target, text, nil)
	if err != nil {
		o.log.Warn("status send failed", logx.Int64("chat_id", chat), logx.Err(err))
		return
	}
	if !terminal {
		o.refs.Add(chat, ref)
	}
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

func statusText(m relay.Message) string {
	switch m.Kind() {
	case relay.KindUpdate:
		return "⏳ " + countdown.FormatClock(m.Remaining()) + " remaining"
	case relay.KindFinished:
		return "🔔 Time's up!"
	case relay.KindCancelled:
		return "⏹ Timer cancelled"
	default:
		return m.String()
	}
}
