package app

import (
	"strings"
	"time"

	"eggtimer/internal/config"
	"eggtimer/internal/observability/pprof"
	"eggtimer/internal/storage"
	kit "eggtimer/internal/transport"
	"eggtimer/internal/transport/telegram"
	logx "eggtimer/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled && cfg.Telegram != nil && cfg.Telegram.Enabled,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

// mapStorageConfig reports false when history is disabled. Validate has
// already rejected unknown drivers.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	tc := cfg.Telegram
	if tc == nil || !tc.Enabled {
		return telegram.Config{}, false, nil
	}
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", tc.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:          tc.Token,
		OwnerUserIDs:   tc.OwnerUserIDs,
		Home:           kit.ChatTarget{ChatID: tc.ChatID, ThreadID: tc.ThreadID},
		PollTimeout:    poll,
		EditRatePerSec: tc.EditRatePerSec,
	}, true, nil
}

func websocketSettings(cfg *config.Config) (addr, path string, ok bool) {
	wc := cfg.Websocket
	if wc == nil || !wc.Enabled {
		return "", "", false
	}
	addr = strings.TrimSpace(wc.Addr)
	if addr == "" {
		addr = config.DefaultWebsocketAddr
	}
	path = strings.TrimSpace(wc.Path)
	if path == "" {
		path = config.DefaultWebsocketPath
	}
	return addr, path, true
}

func relayBuffer(cfg *config.Config) int {
	if cfg.Relay.Buffer > 0 {
		return cfg.Relay.Buffer
	}
	return config.DefaultRelayBuffer
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	pc := cfg.Pprof
	if pc == nil {
		return pprof.Config{}
	}
	return pprof.Config{
		Enabled:              pc.Enabled,
		Addr:                 pc.Addr,
		Token:                pc.Token,
		AllowInsecure:        pc.AllowInsecure,
		MutexProfileFraction: pc.MutexProfileFraction,
		BlockProfileRate:     pc.BlockProfileRate,
	}
}
