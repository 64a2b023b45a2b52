package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"eggtimer/internal/storage"
)

func TestWriteHistory(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	runs := []storage.Run{
		{StartedAt: start, Duration: 180, Outcome: storage.OutcomeFinished, Source: "telegram"},
		{StartedAt: start.Add(time.Hour), Duration: 3700, Remaining: 65, Outcome: storage.OutcomeCancelled},
	}
	var buf bytes.Buffer
	if err := writeHistory(&buf, runs); err != nil {
		t.Fatalf("writeHistory: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "STARTED") {
		t.Fatalf("header = %q", lines[0])
	}
	for _, want := range []string{"2026-03-01 12:00:00", "3:00", "finished", "telegram"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("row 1 %q missing %q", lines[1], want)
		}
	}
	for _, want := range []string{"1:01:40", "cancelled", "1:05", "-"} {
		if !strings.Contains(lines[2], want) {
			t.Fatalf("row 2 %q missing %q", lines[2], want)
		}
	}
}

func TestNewAppCommands(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a := newApp(ctx)
	for _, name := range []string{"countdown", "run", "watch", "history"} {
		if a.Command(name) == nil {
			t.Fatalf("missing command %q", name)
		}
	}
}
