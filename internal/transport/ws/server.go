// Package ws carries relay envelopes over websocket connections so timer
// notifications can be observed from another process.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"eggtimer/internal/countdown"
	"eggtimer/internal/eventbus"
	"eggtimer/internal/relay"
	logx "eggtimer/pkg/logx"
)

const (
	DefaultPath  = "/relay"
	StatusPath   = "/status"
	writeTimeout = 5 * time.Second
)

// ErrUnauthorized is returned by Dial when the server rejects the token.
var ErrUnauthorized = errors.New("ws: unauthorized")

type Options struct {
	// Path serves the websocket upgrade. Defaults to DefaultPath.
	Path string
	// Token enables bearer auth when non-empty.
	Token string
	// Buffer is the per-connection bus subscription size.
	Buffer int
	// Snapshot backs GET /status. Nil disables the endpoint.
	Snapshot func() countdown.Snapshot
	Log      logx.Logger
}

// Server streams every relay envelope published on the bus to each
// connected client as one JSON text frame.
//
// When ServeListener's ctx ends, every connection gets the envelopes already
// queued for it and then a going-away close frame.
type Server struct {
	bus  eventbus.Bus
	opts Options
	log  logx.Logger

	mu       sync.Mutex
	closing  bool
	shutdown chan struct{}
	conns    sync.WaitGroup
}

func NewServer(bus eventbus.Bus, opts Options) *Server {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		bus:      bus,
		opts:     opts,
		log:      log.With(logx.String("comp", "ws")),
		shutdown: make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.opts.Path, requireToken(s.opts.Token, http.HandlerFunc(s.serveRelay)))
	if s.opts.Snapshot != nil {
		mux.Handle("GET "+StatusPath, requireToken(s.opts.Token, http.HandlerFunc(s.serveStatus)))
	}
	return mux
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done, then closes every relay
// connection and waits for their handlers. The http.Server does not track
// hijacked connections, so the wait is done here. A Server serves once.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("websocket relay listening", logx.String("addr", ln.Addr().String()), logx.String("path", s.opts.Path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.beginShutdown()
		_ = srv.Shutdown(shutCtx)
		s.waitConns(shutCtx)
		return nil
	}
}

func (s *Server) beginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closing {
		s.closing = true
		close(s.shutdown)
	}
}

// track registers a relay connection; it fails once shutdown has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

func (s *Server) waitConns(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("websocket connections still open after shutdown deadline")
	}
}

func (s *Server) serveRelay(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	// Subscribe before the handshake completes so nothing published after
	// Dial returns is missed.
	ch, unsub := s.bus.Subscribe(s.opts.Buffer, relay.NewFilter().Actions()...)
	defer unsub()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", logx.Err(err))
		return
	}
	defer conn.CloseNow()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	s.log.Debug("websocket client connected", logx.String("remote", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("websocket client gone", logx.String("remote", r.RemoteAddr))
			return
		case <-s.shutdown:
			s.closeDrained(ctx, conn, ch, r.RemoteAddr)
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := s.write(ctx, conn, ev); err != nil {
				s.log.Debug("websocket write failed", logx.Err(err), logx.String("remote", r.RemoteAddr))
				return
			}
		}
	}
}

// closeDrained flushes what is already queued for the connection, then
// sends a going-away close frame.
func (s *Server) closeDrained(ctx context.Context, conn *websocket.Conn, ch <-chan eventbus.Event, remote string) {
drain:
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				break drain
			}
			if err := s.write(ctx, conn, ev); err != nil {
				s.log.Debug("websocket write failed during shutdown", logx.Err(err), logx.String("remote", remote))
				return
			}
		default:
			break drain
		}
	}
	if err := conn.Close(websocket.StatusGoingAway, "shutting down"); err != nil {
		s.log.Debug("websocket close", logx.Err(err), logx.String("remote", remote))
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, ev eventbus.Event) error {
	env, ok := ev.Data.(relay.Envelope)
	if !ok {
		return nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, b)
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.opts.Snapshot())
}
