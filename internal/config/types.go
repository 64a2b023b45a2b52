package config

type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Timer     TimerConfig      `json:"timer"`
	Relay     RelayConfig      `json:"relay"`
	Websocket *WebsocketConfig `json:"websocket,omitempty"`
	Telegram  *TelegramConfig  `json:"telegram,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Pprof     *PprofConfig     `json:"pprof,omitempty"`
}

// TimerConfig bounds what callers may request.
//
// All durations are Go duration strings (e.g. "90s", "5m") or plain seconds.
// Defaults: default_duration "3m", max_duration "24h".
type TimerConfig struct {
	DefaultDuration string `json:"default_duration,omitempty"`
	MaxDuration     string `json:"max_duration,omitempty"`
}

// RelayConfig sizes the in-process relay.
type RelayConfig struct {
	// Buffer is the per-receiver channel capacity (default 64).
	Buffer int `json:"buffer,omitempty"`
}

// WebsocketConfig controls the websocket relay endpoint.
//
// Security note: bind to localhost or set a token.
type WebsocketConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:8787"
	Path    string `json:"path,omitempty"`  // default: "/relay"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives status messages and log alerts.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// EditRatePerSec caps status message edits (default 1).
	EditRatePerSec int `json:"edit_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warn+ logs to the Telegram chat.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./eggtimer.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the debug profiling listener. It is applied on reload.
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Addr                 string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	Token                string `json:"token,omitempty"`
	AllowInsecure        bool   `json:"allow_insecure,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
}
