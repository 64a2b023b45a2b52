package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "eggtimer/pkg/logx"
)

// maxOpenRuns bounds runs begun but not yet ended (terminal events lost to a
// full relay buffer would otherwise pile up).
const maxOpenRuns = 8

// Recorder is a countdown listener on the receiving side of the relay. It
// writes one Run per finished or cancelled countdown announced via Begin.
//
// Begin is called synchronously by whoever starts the timer while events
// arrive later through the relay, so a new run may be begun before the
// previous run's terminal event is delivered. Open runs are kept in start
// order and each terminal event closes the oldest.
type Recorder struct {
	store   Store
	log     logx.Logger
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	open []*Run
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, timeout: 5 * time.Second, now: time.Now}
}

// Begin announces a new run and returns its id.
func (r *Recorder) Begin(duration int, source string) string {
	id := uuid.NewString()
	r.mu.Lock()
	if len(r.open) >= maxOpenRuns {
		r.log.Warn("history run never ended; discarding", logx.String("run", r.open[0].ID))
		r.open = r.open[1:]
	}
	r.open = append(r.open, &Run{
		ID:        id,
		StartedAt: r.now(),
		Duration:  duration,
		Remaining: duration,
		Source:    source,
	})
	r.mu.Unlock()
	return id
}

func (r *Recorder) OnTimerUpdate(remaining int) {
	r.mu.Lock()
	if len(r.open) > 0 {
		r.open[0].Remaining = remaining
	}
	r.mu.Unlock()
}

func (r *Recorder) OnTimerFinished() { r.end(OutcomeFinished) }

func (r *Recorder) OnTimerCancelled() { r.end(OutcomeCancelled) }

func (r *Recorder) end(outcome Outcome) {
	r.mu.Lock()
	if len(r.open) == 0 {
		r.mu.Unlock()
		return
	}
	run := r.open[0]
	r.open[0] = nil
	r.open = r.open[1:]
	r.mu.Unlock()

	run.EndedAt = r.now()
	run.Outcome = outcome
	if outcome == OutcomeFinished {
		run.Remaining = 0
	}
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.AppendRun(ctx, *run); err != nil {
		r.log.Warn("history append failed", logx.String("run", run.ID), logx.Err(err))
		return
	}
	r.log.Debug("history appended",
		logx.String("run", run.ID),
		logx.String("outcome", string(outcome)),
		logx.Int("remaining", run.Remaining),
	)
}
