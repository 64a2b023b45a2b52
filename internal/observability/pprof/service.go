// Package pprof runs the optional net/http/pprof debug listener.
package pprof

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	"eggtimer/internal/runtime/supervisor"
	logx "eggtimer/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Config controls the debug listener.
//
// A non-loopback Addr needs a Token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	MutexProfileFraction int
	BlockProfileRate     int
}

// Service can be reconfigured at any time; a changed address or token
// restarts the listener.
type Service struct {
	log logx.Logger

	mu   sync.Mutex
	cfg  Config
	sup  *supervisor.Supervisor
	addr string
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log.With(logx.String("comp", "pprof"))}
}

// Addr is the bound address, or "" when not listening.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	if cfg.Addr = strings.TrimSpace(cfg.Addr); cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)

	s.mu.Lock()
	prev, running := s.cfg, s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
		return nil
	case running && prev.Addr == cfg.Addr && prev.Token == cfg.Token && prev.AllowInsecure == cfg.AllowInsecure:
		return nil
	}
	s.Stop(ctx)
	return s.start(ctx, cfg)
}

func (s *Service) start(ctx context.Context, cfg Config) error {
	if cfg.Token == "" && !isLoopback(cfg.Addr) {
		if !cfg.AllowInsecure {
			return errors.New("pprof: non-loopback addr requires token or allow_insecure")
		}
		s.log.Warn("pprof without token on non-loopback addr (insecure)", logx.String("addr", cfg.Addr))
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler(cfg.Token), ReadHeaderTimeout: 5 * time.Second}

	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
	sup.Go("pprof.serve", func(c context.Context) error {
		go func() {
			<-c.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.mu.Lock()
	s.sup, s.addr = sup, ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("pprof started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup, s.addr = nil, ""
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("pprof stop", logx.Err(err))
		return
	}
	s.log.Info("pprof stopped")
}

func handler(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", hpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	if token == "" {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func isLoopback(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
