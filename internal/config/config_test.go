package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	jp := writeFile(t, dir, "cfg.json", `{
		"logging": {"level": "debug", "console": true},
		"timer": {"default_duration": "90s", "max_duration": "1h"},
		"websocket": {"enabled": true, "addr": "127.0.0.1:0"},
		"storage": {"driver": "file", "path": "./runs.jsonl"}
	}`)
	yp := writeFile(t, dir, "cfg.yaml", `
logging:
  level: debug
  console: true
timer:
  default_duration: 90s
  max_duration: 1h
websocket:
  enabled: true
  addr: 127.0.0.1:0
storage:
  driver: file
  path: ./runs.jsonl
`)

	jc, err := NewConfigManager(jp).Parse()
	if err != nil {
		t.Fatalf("Parse json: %v", err)
	}
	yc, err := NewConfigManager(yp).Parse()
	if err != nil {
		t.Fatalf("Parse yaml: %v", err)
	}
	if !reflect.DeepEqual(jc, yc) {
		t.Fatalf("json and yaml configs differ:\n%+v\n%+v", jc, yc)
	}
	def, maxSecs := jc.TimerLimits()
	if def != 90 || maxSecs != 3600 {
		t.Fatalf("TimerLimits = %d, %d; want 90, 3600", def, maxSecs)
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "unknown.json", `{"logging": {"level": "info"}, "plugins": {}}`)
	if _, err := NewConfigManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
	p = writeFile(t, dir, "trailing.json", `{} {}`)
	if _, err := NewConfigManager(p).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
	p = writeFile(t, dir, "empty.yaml", ``)
	if _, err := NewConfigManager(p).Parse(); err != nil {
		t.Fatalf("empty yaml should parse: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero value", cfg: Config{}},
		{name: "bad default", cfg: Config{Timer: TimerConfig{DefaultDuration: "soon"}}, wantErr: "timer.default_duration"},
		{name: "default above max", cfg: Config{Timer: TimerConfig{DefaultDuration: "2h", MaxDuration: "1h"}}, wantErr: "exceeds"},
		{name: "negative duration", cfg: Config{Timer: TimerConfig{MaxDuration: "-5"}}, wantErr: "must be positive"},
		{name: "telegram without token", cfg: Config{Telegram: &TelegramConfig{Enabled: true}}, wantErr: "telegram.token"},
		{name: "disabled telegram ignored", cfg: Config{Telegram: &TelegramConfig{}}},
		{name: "unknown driver", cfg: Config{Storage: &StorageConfig{Driver: "mongo"}}, wantErr: "not supported"},
		{name: "sqlite without path", cfg: Config{Storage: &StorageConfig{Driver: "sqlite"}}, wantErr: "storage.path"},
		{name: "ws path", cfg: Config{Websocket: &WebsocketConfig{Enabled: true, Path: "relay"}}, wantErr: "websocket.path"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(context.Background(), &tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseSeconds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want int
	}{
		{"90", 90},
		{" 5 ", 5},
		{"1m30s", 90},
		{"1500ms", 2},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseSeconds(tt.raw)
		if err != nil || got != tt.want {
			t.Fatalf("ParseSeconds(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
	if _, err := ParseSeconds("soon"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseSeconds(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{
		Logging:  LoggingConfig{Level: "debug"},
		Telegram: &TelegramConfig{Enabled: true, Token: "secret"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !reflect.DeepEqual(changed, []string{"logging", "telegram"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log attrs")
	}
	if !RestartRequired(changed) {
		t.Fatal("telegram change should require restart")
	}
	if RestartRequired([]string{"logging", "pprof", "timer"}) {
		t.Fatal("logging, pprof and timer changes apply live")
	}
	if c, _ := SummarizeConfigChange(newCfg, newCfg); len(c) != 0 {
		t.Fatalf("identical configs reported changes: %v", c)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(p)
	m.SetValidator(Validate)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "cfg.json", `{"logging": {"level": "info"}, "timer": {"default_duration": "oops"}}`)
	time.Sleep(3 * reloadDebounce)
	writeFile(t, dir, "cfg.json", `{"logging": {"level": "debug"}}`)

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q, want debug (invalid config must be rejected)", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("committed level = %q", m.Get().Logging.Level)
	}
}
