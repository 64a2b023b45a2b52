package countdown

import (
	"sync"
	"time"

	logx "eggtimer/pkg/logx"
)

// Timer is a single countdown. It is safe for concurrent use.
type Timer struct {
	listener Listener
	trigger  Trigger
	interval time.Duration
	log      logx.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	duration  int
	remaining int
	run       uint64 // ticks scheduled by an older run are ignored
	cancel    func()
	startedAt time.Time
	endedAt   time.Time
}

type Option func(*Timer)

// WithTrigger replaces the default cron trigger.
func WithTrigger(tr Trigger) Option { return func(t *Timer) { t.trigger = tr } }

// WithInterval overrides TickInterval. Only tests and demos should need it.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(t *Timer) { t.log = log } }

// New returns an idle timer reporting to l. A nil listener is a programming error.
func New(l Listener, opts ...Option) *Timer {
	if l == nil {
		panic("countdown: nil listener")
	}
	t := &Timer{
		listener: l,
		interval: TickInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	if t.trigger == nil {
		t.trigger = NewCronTrigger(t.log)
	}
	return t
}

// SetDuration sets the countdown length in seconds and returns a stopped timer
// to Idle. The value is not validated; a non-positive duration finishes on the
// first tick.
func (t *Timer) SetDuration(seconds int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateRunning {
		return ErrRunning
	}
	t.duration = seconds
	t.remaining = seconds
	t.state = StateIdle
	t.startedAt = time.Time{}
	t.endedAt = time.Time{}
	return nil
}

// Start begins ticking. The first tick fires one interval after Start.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateRunning:
		return ErrRunning
	case StateIdle:
	default:
		return ErrNotIdle
	}

	t.run++
	run := t.run
	t.state = StateRunning
	t.startedAt = t.now()
	// tick blocks on t.mu, so a trigger firing early still sees a fully started run.
	t.cancel = t.trigger.Schedule(t.interval, func() { t.tick(run) })
	t.log.Debug("countdown started",
		logx.Uint64("run", run),
		logx.Int("duration", t.duration),
		logx.Duration("interval", t.interval),
	)
	return nil
}

// Stop cancels a running timer and reports OnTimerCancelled. It is a no-op
// when the timer is not running.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return
	}
	t.finishLocked(StateCancelled)
	t.log.Debug("countdown cancelled", logx.Uint64("run", t.run), logx.Int("remaining", t.remaining))
	t.listener.OnTimerCancelled()
}

func (t *Timer) tick(run uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning || run != t.run {
		return
	}
	t.remaining--
	if t.remaining > 0 {
		t.listener.OnTimerUpdate(t.remaining)
		return
	}
	t.finishLocked(StateFinished)
	t.log.Debug("countdown finished", logx.Uint64("run", run), logx.Int("duration", t.duration))
	t.listener.OnTimerFinished()
}

func (t *Timer) finishLocked(state State) {
	t.state = state
	t.endedAt = t.now()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:     t.state,
		Duration:  t.duration,
		Remaining: t.remaining,
		Run:       t.run,
		StartedAt: t.startedAt,
		EndedAt:   t.endedAt,
	}
}
