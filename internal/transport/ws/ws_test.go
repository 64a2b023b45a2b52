package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"eggtimer/internal/countdown"
	"eggtimer/internal/eventbus"
	"eggtimer/internal/relay"
	logx "eggtimer/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnTimerUpdate(n int) { r.add(fmt.Sprintf("update:%d", n)) }
func (r *recorder) OnTimerFinished()    { r.add("finished") }
func (r *recorder) OnTimerCancelled()   { r.add("cancelled") }

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestRelayOverWebsocket(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	srv := httptest.NewServer(NewServer(bus, Options{}).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv, DefaultPath), "", logx.Nop())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- c.Receive(ctx, rec) }()

	mt := &countdown.ManualTrigger{}
	timer := countdown.New(relay.NewEmitter(bus), countdown.WithTrigger(mt))
	if err := timer.SetDuration(2); err != nil {
		t.Fatal(err)
	}
	if err := timer.Start(); err != nil {
		t.Fatal(err)
	}
	for mt.Fire() {
	}

	want := []string{"update:1", "finished"}
	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) < len(want) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := rec.snapshot()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	_ = c.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(NewServer(eventbus.New(), Options{Token: "s3cret"}).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, tok := range []string{"", "wrong"} {
		if _, err := Dial(ctx, wsURL(srv, DefaultPath), tok, logx.Nop()); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Dial(token=%q) = %v, want ErrUnauthorized", tok, err)
		}
	}
	c, err := Dial(ctx, wsURL(srv, DefaultPath), "s3cret", logx.Nop())
	if err != nil {
		t.Fatalf("Dial with token: %v", err)
	}
	_ = c.Close()
}

func TestClientSkipsBadFrames(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for _, frame := range []string{
			`not json`,
			`{"action":"eggtimer.timer.paused"}`,
			`{"action":"eggtimer.timer.update","remaining_seconds":4}`,
			`{"action":"eggtimer.timer.update"}`,
			`{"action":"eggtimer.timer.cancelled"}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv, "/"), "", logx.Nop())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	rec := &recorder{}
	if err := c.Receive(ctx, rec); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	want := "update:4,update:0,cancelled"
	if got := strings.Join(rec.snapshot(), ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	snap := countdown.Snapshot{State: countdown.StateRunning, Duration: 10, Remaining: 7, Run: 2}
	srv := httptest.NewServer(NewServer(eventbus.New(), Options{
		Token:    "tok",
		Snapshot: func() countdown.Snapshot { return snap },
	}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + StatusPath)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+StatusPath, nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["state"] != "running" || got["remaining_seconds"] != float64(7) {
		t.Fatalf("status body = %v", got)
	}
}

func TestShutdownFlushesQueuedAndClosesCleanly(t *testing.T) {
	t.Parallel()
	for i := 0; i < 5; i++ {
		i := i
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()
			bus := eventbus.New()
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			serveCtx, stopServe := context.WithCancel(context.Background())
			defer stopServe()
			served := make(chan error, 1)
			go func() { served <- NewServer(bus, Options{}).ServeListener(serveCtx, ln) }()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c, err := Dial(ctx, "ws://"+ln.Addr().String()+DefaultPath, "", logx.Nop())
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			rec := &recorder{}
			received := make(chan error, 1)
			go func() { received <- c.Receive(ctx, rec) }()

			mt := &countdown.ManualTrigger{}
			timer := countdown.New(relay.NewEmitter(bus), countdown.WithTrigger(mt))
			if err := timer.SetDuration(5); err != nil {
				t.Fatal(err)
			}
			if err := timer.Start(); err != nil {
				t.Fatal(err)
			}
			mt.Fire()
			timer.Stop()
			stopServe()

			if err := <-served; err != nil {
				t.Fatalf("ServeListener: %v", err)
			}
			select {
			case err := <-received:
				if err != nil {
					t.Fatalf("Receive after server shutdown: %v", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("Receive did not return after server shutdown")
			}
			if got := strings.Join(rec.snapshot(), ","); got != "update:4,cancelled" {
				t.Fatalf("events = %s, want update:4,cancelled", got)
			}
		})
	}
}
