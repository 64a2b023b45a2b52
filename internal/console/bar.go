// Package console renders countdown notifications in a terminal.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"eggtimer/internal/config"
	"eggtimer/internal/countdown"
)

// Bar is a countdown.Listener drawing one progress bar per run. Finished
// completes the bar and Cancelled aborts it, leaving it on screen.
//
// When the run length is unknown (remote observers) it is inferred from the
// first update.
type Bar struct {
	p     *mpb.Progress
	label string

	mu      sync.Mutex
	next    int // total for the next bar; 0 means infer
	total   int
	current *mpb.Bar
	runs    int
}

// NewBar writes to w. seconds is the length of the first run, or 0 if unknown.
func NewBar(w io.Writer, label string, seconds int) *Bar {
	p := mpb.New(
		mpb.WithOutput(w),
		mpb.WithWidth(48),
		mpb.WithRefreshRate(100*time.Millisecond),
	)
	return &Bar{p: p, label: label, next: seconds}
}

func (b *Bar) OnTimerUpdate(remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bar := b.barLocked(remaining + 1)
	if remaining > b.total {
		// A remote run longer than inferred; grow rather than go backwards.
		b.total = remaining
		bar.SetTotal(int64(b.total), false)
	}
	bar.SetCurrent(int64(b.total - remaining))
}

func (b *Bar) OnTimerFinished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	bar := b.barLocked(1)
	bar.SetCurrent(int64(b.total))
	bar.SetTotal(-1, true)
	b.endLocked()
}

func (b *Bar) OnTimerCancelled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	bar := b.barLocked(1)
	bar.Abort(false)
	b.endLocked()
}

// Runs returns how many bars have been drawn.
func (b *Bar) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

// Wait flushes output once every bar has ended.
func (b *Bar) Wait() { b.p.Wait() }

// Shutdown aborts an unfinished bar and flushes output.
func (b *Bar) Shutdown() {
	b.mu.Lock()
	if b.current != nil {
		b.current.Abort(false)
		b.endLocked()
	}
	b.mu.Unlock()
	b.p.Wait()
}

func (b *Bar) barLocked(inferred int) *mpb.Bar {
	if b.current != nil {
		return b.current
	}
	b.total = b.next
	if b.total <= 0 {
		b.total = inferred
	}
	b.next = 0
	b.runs++

	total := b.total
	style := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	b.current = b.p.New(int64(total),
		style,
		mpb.PrependDecorators(
			decor.Name(b.label, decor.WC{W: len(b.label) + 1, C: decor.DindentRight}),
			decor.OnAbort(
				decor.OnComplete(decor.Any(func(s decor.Statistics) string {
					return countdown.FormatClock(int(s.Total-s.Current)) + " left"
				}, decor.WC{W: 12}), "done"),
				"cancelled",
			),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
	)
	return b.current
}

func (b *Bar) endLocked() {
	b.current = nil
	b.total = 0
}

// ParseDuration accepts plain seconds ("90") or a Go duration ("1m30s");
// partial seconds round up.
func ParseDuration(raw string) (int, error) {
	secs, err := config.ParseSeconds(raw)
	if err != nil {
		return 0, err
	}
	if secs <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return secs, nil
}
