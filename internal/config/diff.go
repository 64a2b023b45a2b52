package config

import (
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "eggtimer/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured fields for logging (tokens are never included).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Timer != newCfg.Timer {
		changed = append(changed, "timer")
		def, maxSecs := newCfg.TimerLimits()
		attrs = append(attrs,
			logx.Int("timer.default_seconds", def),
			logx.Int("timer.max_seconds", maxSecs),
		)
	}

	if oldCfg.Relay != newCfg.Relay {
		changed = append(changed, "relay")
		attrs = append(attrs, logx.Int("relay.buffer", newCfg.Relay.Buffer))
	}

	oWS, nWS := derefWebsocket(oldCfg.Websocket), derefWebsocket(newCfg.Websocket)
	if oWS.Enabled != nWS.Enabled ||
		strings.TrimSpace(oWS.Addr) != strings.TrimSpace(nWS.Addr) ||
		strings.TrimSpace(oWS.Path) != strings.TrimSpace(nWS.Path) ||
		oWS.Token != nWS.Token {
		changed = append(changed, "websocket")
		attrs = append(attrs,
			logx.Bool("websocket.enabled", nWS.Enabled),
			logx.String("websocket.addr", strings.TrimSpace(nWS.Addr)),
			logx.Bool("websocket.token_set", strings.TrimSpace(nWS.Token) != ""),
		)
	}

	oTG, nTG := derefTelegram(oldCfg.Telegram), derefTelegram(newCfg.Telegram)
	if oTG.Enabled != nTG.Enabled ||
		oTG.Token != nTG.Token ||
		!reflect.DeepEqual(oTG.OwnerUserIDs, nTG.OwnerUserIDs) ||
		oTG.ChatID != nTG.ChatID ||
		oTG.ThreadID != nTG.ThreadID ||
		strings.TrimSpace(oTG.PollTimeout) != strings.TrimSpace(nTG.PollTimeout) ||
		oTG.EditRatePerSec != nTG.EditRatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nTG.Enabled),
			logx.Int("telegram.owner_count", len(nTG.OwnerUserIDs)),
			logx.Bool("telegram.chat_set", nTG.ChatID != 0),
			logx.Int("telegram.edit_rate_per_sec", nTG.EditRatePerSec),
		)
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	oP, nP := derefPprof(oldCfg.Pprof), derefPprof(newCfg.Pprof)
	if oP != nP {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", nP.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(nP.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports whether a change touches sections that are only
// read at startup (everything except logging, timer limits and pprof).
func RestartRequired(changed []string) bool {
	for _, c := range changed {
		if c != "logging" && c != "timer" && c != "pprof" {
			return true
		}
	}
	return false
}

func derefWebsocket(c *WebsocketConfig) WebsocketConfig {
	if c == nil {
		return WebsocketConfig{}
	}
	return *c
}

func derefTelegram(c *TelegramConfig) TelegramConfig {
	if c == nil {
		return TelegramConfig{}
	}
	return *c
}

func derefPprof(c *PprofConfig) PprofConfig {
	if c == nil {
		return PprofConfig{}
	}
	return *c
}

func derefStorage(c *StorageConfig) StorageConfig {
	if c == nil {
		return StorageConfig{}
	}
	return *c
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
