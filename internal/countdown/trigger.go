package countdown

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "eggtimer/pkg/logx"
)

// Trigger runs fn periodically until the returned cancel func is called.
//
// Cancellation is cooperative: it prevents future firings, a firing already
// in flight is allowed to complete. cancel must be safe to call from inside fn
// and more than once.
type Trigger interface {
	Schedule(interval time.Duration, fn func()) (cancel func())
}

// fixedDelaySchedule fires every delay, measured from the previous firing.
// cron.Every rounds to whole seconds from the wall clock, which would make the
// first tick land anywhere within the first second.
type fixedDelaySchedule struct {
	delay time.Duration
}

func (s fixedDelaySchedule) Next(t time.Time) time.Time { return t.Add(s.delay) }

// CronTrigger runs each schedule on its own cron runner.
type CronTrigger struct {
	log logx.Logger
}

func NewCronTrigger(log logx.Logger) *CronTrigger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CronTrigger{log: log}
}

func (t *CronTrigger) Schedule(interval time.Duration, fn func()) func() {
	if interval <= 0 {
		interval = TickInterval
	}
	cl := cronLogger{log: t.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(fixedDelaySchedule{delay: interval}, cron.FuncJob(fn))
	c.Start()

	var once sync.Once
	return func() {
		// Stop only signals the run loop; don't wait for the in-flight job,
		// which may be the caller.
		once.Do(func() { c.Stop() })
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !l.log.Enabled(logx.LevelTrace) {
		return
	}
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

// ManualTrigger fires only when Fire is called. Tests and the console demo use
// it to drive a Timer without waiting on the wall clock.
type ManualTrigger struct {
	mu       sync.Mutex
	fn       func()
	interval time.Duration
	gen      uint64
}

func (m *ManualTrigger) Schedule(interval time.Duration, fn func()) func() {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.fn = fn
	m.interval = interval
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if m.gen == gen {
			m.fn = nil
		}
		m.mu.Unlock()
	}
}

// Fire invokes the scheduled func once. It reports false when nothing is scheduled.
func (m *ManualTrigger) Fire() bool {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Active reports whether a schedule is currently installed.
func (m *ManualTrigger) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

// Interval returns the interval passed to the last Schedule call.
func (m *ManualTrigger) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}
