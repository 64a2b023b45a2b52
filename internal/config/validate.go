package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimerDuration = 3 * time.Minute
	DefaultMaxDuration   = 24 * time.Hour
	DefaultRelayBuffer   = 64
	DefaultWebsocketAddr = "127.0.0.1:8787"
	DefaultWebsocketPath = "/relay"
)

// Validate checks a parsed config before it is committed.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	def, err := durationOrSeconds("timer.default_duration", cfg.Timer.DefaultDuration, DefaultTimerDuration)
	if err != nil {
		errs = append(errs, err)
	}
	maxD, err := durationOrSeconds("timer.max_duration", cfg.Timer.MaxDuration, DefaultMaxDuration)
	if err != nil {
		errs = append(errs, err)
	}
	if err == nil && def > maxD {
		errs = append(errs, fmt.Errorf("timer.default_duration %v exceeds timer.max_duration %v", def, maxD))
	}
	if cfg.Relay.Buffer < 0 {
		errs = append(errs, errors.New("relay.buffer must be >= 0"))
	}

	if ws := cfg.Websocket; ws != nil && ws.Enabled {
		if p := strings.TrimSpace(ws.Path); p != "" && !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("websocket.path %q must start with /", p))
		}
	}

	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
		}
		if _, err := ParseDurationField("telegram.poll_timeout", tg.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver %q is not supported", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if pp := cfg.Pprof; pp != nil && pp.Enabled {
		if pp.MutexProfileFraction < 0 || pp.BlockProfileRate < 0 {
			errs = append(errs, errors.New("pprof profile rates must be >= 0"))
		}
	}

	return errors.Join(errs...)
}

// TimerLimits returns the effective default and maximum countdown length in seconds.
func (c *Config) TimerLimits() (def, maxSecs int) {
	d, err := durationOrSeconds("", c.Timer.DefaultDuration, DefaultTimerDuration)
	if err != nil {
		d = DefaultTimerDuration
	}
	m, err := durationOrSeconds("", c.Timer.MaxDuration, DefaultMaxDuration)
	if err != nil {
		m = DefaultMaxDuration
	}
	return int(d / time.Second), int(m / time.Second)
}

func durationOrSeconds(path, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	secs, err := ParseSeconds(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%s: must be positive", path)
	}
	return time.Duration(secs) * time.Second, nil
}
