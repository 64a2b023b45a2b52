package telegram

import (
	"errors"
	"fmt"
	"strings"

	"eggtimer/internal/config"
	"eggtimer/internal/countdown"
	kit "eggtimer/internal/transport"
	logx "eggtimer/pkg/logx"
)

const helpText = `/timer [duration] start a countdown (e.g. 90, 5m, 1h30m)
/stop cancel the running countdown
/status show the current countdown`

// cmdTimer points the status message at the calling chat and starts a run.
func (b *Bot) cmdTimer(to kit.ChatTarget, args []string) string {
	secs := b.ctrl.DefaultSeconds()
	if raw := strings.Join(args, ""); raw != "" {
		n, err := config.ParseSeconds(raw)
		if err != nil {
			return "Usage: /timer [duration]\n" + err.Error()
		}
		secs = n
	}

	prev := b.obs.Target()
	b.obs.SetTarget(to)
	if err := b.ctrl.StartTimer(secs); err != nil {
		b.obs.SetTarget(prev)
		if errors.Is(err, countdown.ErrRunning) {
			return "A timer is already running. /stop it first."
		}
		b.log.Debug("timer start refused", logx.Int("seconds", secs), logx.Err(err))
		return "Cannot start timer: " + err.Error()
	}
	return "Timer started for " + countdown.FormatClock(secs) + "."
}

func (b *Bot) cmdStop(kit.ChatTarget, []string) string {
	if b.ctrl.Snapshot().State != countdown.StateRunning {
		return "No timer is running."
	}
	b.ctrl.StopTimer()
	return "Timer stopped."
}

func (b *Bot) cmdStatus(kit.ChatTarget, []string) string {
	return formatSnapshot(b.ctrl.Snapshot())
}

func formatSnapshot(s countdown.Snapshot) string {
	switch s.State {
	case countdown.StateRunning:
		return fmt.Sprintf("Running: %s left of %s", countdown.FormatClock(s.Remaining), countdown.FormatClock(s.Duration))
	case countdown.StateFinished:
		return fmt.Sprintf("Finished (%s)", countdown.FormatClock(s.Duration))
	case countdown.StateCancelled:
		return fmt.Sprintf("Cancelled with %s left", countdown.FormatClock(s.Remaining))
	default:
		return "Idle"
	}
}
