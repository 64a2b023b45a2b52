// Package systemd reports service state to systemd when running as a
// Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "eggtimer/pkg/logx"
)

func Ready(log logx.Logger) { notify(log, daemon.SdNotifyReady) }

func Stopping(log logx.Logger) { notify(log, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(log logx.Logger, format string, args ...any) {
	notify(log, "STATUS="+fmt.Sprintf(format, args...))
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
