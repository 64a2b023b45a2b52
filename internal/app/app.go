package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"eggtimer/internal/config"
	"eggtimer/internal/countdown"
	"eggtimer/internal/eventbus"
	"eggtimer/internal/observability/pprof"
	"eggtimer/internal/relay"
	"eggtimer/internal/runtime/supervisor"
	"eggtimer/internal/storage"
	"eggtimer/internal/transport/telegram"
	"eggtimer/internal/transport/ws"
	logx "eggtimer/pkg/logx"
	"eggtimer/pkg/systemd"
)

// ErrInvalidDuration is returned by StartTimer for lengths outside 1..max_duration.
var ErrInvalidDuration = errors.New("invalid timer duration")

// Run sources recorded in history.
const (
	SourceAPI      = "api"
	SourceCLI      = "cli"
	SourceTelegram = "telegram"
)

type Option func(*App)

// WithTrigger replaces the wall-clock tick source.
func WithTrigger(tr countdown.Trigger) Option { return func(a *App) { a.trigger = tr } }

// App wires one countdown timer to its relay receivers and transports:
//
//	timer -> relay emitter -> bus -> {history recorder, telegram observer, websocket clients}
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	recorder *storage.Recorder

	trigger countdown.Trigger
	timer   *countdown.Timer
	buffer  int

	ws     *ws.Server
	wsAddr string
	wsLn   net.Listener

	tg    *telegram.Bot
	pprof *pprof.Service

	limitsMu sync.RWMutex
	defSecs  int
	maxSecs  int

	// startMu keeps SetDuration/Start/Begin of one StartTimer together.
	startMu sync.Mutex
}

func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		buffer:  relayBuffer(cfg),
		pprof:   pprof.New(log),
	}
	for _, o := range opts {
		o(a)
	}
	a.defSecs, a.maxSecs = cfg.TimerLimits()

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		a.recorder = storage.NewRecorder(st, log.With(logx.String("comp", "history")))
		a.log.Info("history enabled", logx.String("driver", sc.Driver))
	}

	timerOpts := []countdown.Option{countdown.WithLogger(log.With(logx.String("comp", "countdown")))}
	if a.trigger != nil {
		timerOpts = append(timerOpts, countdown.WithTrigger(a.trigger))
	}
	a.timer = countdown.New(relay.NewEmitter(a.bus), timerOpts...)

	if addr, path, ok := websocketSettings(cfg); ok {
		a.wsAddr = addr
		a.ws = ws.NewServer(a.bus, ws.Options{
			Path:     path,
			Token:    cfg.Websocket.Token,
			Buffer:   a.buffer,
			Snapshot: a.timer.Snapshot,
			Log:      log,
		})
	}

	tc, enabled, err := mapTelegramConfig(cfg)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	if enabled {
		bot, err := telegram.New(tc, sourceController{a: a, source: SourceTelegram}, log)
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.tg = bot
		logs.SetSender(bot)
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Logger() logx.Logger { return a.log }

// WebsocketAddr is the bound relay address once started, or "".
func (a *App) WebsocketAddr() string {
	if a.wsLn == nil {
		return ""
	}
	return a.wsLn.Addr().String()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// Listen before anything runs so a taken port fails Start.
	if a.ws != nil {
		ln, err := net.Listen("tcp", a.wsAddr)
		if err != nil {
			a.sup.Cancel()
			return fmt.Errorf("websocket listen %s: %w", a.wsAddr, err)
		}
		a.wsLn = ln
		a.sup.Go("ws.serve", func(c context.Context) error { return a.ws.ServeListener(c, ln) })
	}

	// Receivers subscribe here, before any timer can run.
	if a.recorder != nil {
		recv := relay.NewReceiver(a.recorder, a.log.With(logx.String("comp", "relay.history")))
		a.sup.Go("relay.history", recv.Subscribe(a.bus, a.buffer))
	}
	if a.tg != nil {
		recv := relay.NewReceiver(a.tg.Observer(), a.log.With(logx.String("comp", "relay.telegram")))
		a.sup.Go("relay.telegram", recv.Subscribe(a.bus, a.buffer))
		// The bot outlives the supervisor so Stop can let the relay drain into
		// the observer before the bot goes down.
		if err := a.tg.Start(context.WithoutCancel(a.sup.Context())); err != nil {
			a.sup.Cancel()
			return err
		}
	}

	events, unsub := a.bus.Subscribe(a.buffer)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// pprof is optional; a bad listener never fails Start.
	if err := a.pprof.Reconfigure(a.sup.Context(), mapPprofConfig(a.cfgm.Get())); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	systemd.Ready(a.log)
	a.log.Info("app started", logx.Int("default_seconds", a.DefaultSeconds()))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			if config.RestartRequired(sections) {
				a.log.Warn("config change needs a restart to take effect", logx.String("changed", strings.Join(sections, ",")))
			}

			a.logs.Apply(mapLoggingConfig(newCfg))
			if err := a.pprof.Reconfigure(ctx, mapPprofConfig(newCfg)); err != nil {
				a.log.Warn("pprof reconfigure failed", logx.Err(err))
			}
			def, maxSecs := newCfg.TimerLimits()
			a.limitsMu.Lock()
			a.defSecs, a.maxSecs = def, maxSecs
			a.limitsMu.Unlock()

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// Stop cancels a running countdown, stops the transports and waits for the
// supervised goroutines, each step bounded so one component can't stall it.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	systemd.Stopping(a.log)
	a.log.Info("stopping")

	// Cancelled is published before receivers unwind; they drain what is queued.
	a.timer.Stop()
	a.sup.Cancel()

	a.step(ctx, "pprof", time.Second, func(c context.Context) error {
		a.pprof.Stop(c)
		return nil
	})
	a.step(ctx, "supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "telegram", 5*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeStore() })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// DefaultSeconds is the configured length used when none is given.
func (a *App) DefaultSeconds() int {
	a.limitsMu.RLock()
	defer a.limitsMu.RUnlock()
	return a.defSecs
}

// StartTimer starts a countdown of seconds. A finished or cancelled timer is
// restarted with the new length; a running one yields countdown.ErrRunning.
func (a *App) StartTimer(seconds int) error { return a.startTimer(seconds, SourceAPI) }

// StartTimerFrom is StartTimer with the history source recorded.
func (a *App) StartTimerFrom(seconds int, source string) error {
	return a.startTimer(seconds, source)
}

func (a *App) startTimer(seconds int, source string) error {
	a.limitsMu.RLock()
	maxSecs := a.maxSecs
	a.limitsMu.RUnlock()
	if seconds <= 0 || seconds > maxSecs {
		return fmt.Errorf("%w: %d (allowed 1..%d seconds)", ErrInvalidDuration, seconds, maxSecs)
	}

	a.startMu.Lock()
	defer a.startMu.Unlock()
	if err := a.timer.SetDuration(seconds); err != nil {
		return err
	}
	if err := a.timer.Start(); err != nil {
		return err
	}
	// The first tick is a full interval away, so Begin lands before any event.
	if a.recorder != nil {
		a.recorder.Begin(seconds, source)
	}
	a.log.Info("timer started", logx.Int("seconds", seconds), logx.String("source", source))
	return nil
}

// StopTimer cancels a running countdown; otherwise it does nothing.
func (a *App) StopTimer() {
	if a.timer.State() == countdown.StateRunning {
		a.log.Info("timer stop requested")
	}
	a.timer.Stop()
}

func (a *App) Snapshot() countdown.Snapshot { return a.timer.Snapshot() }

// History lists recorded runs, newest first.
func (a *App) History(ctx context.Context, limit int) ([]storage.Run, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.ListRuns(ctx, limit)
}

// OpenHistory opens only the history store configured in cfgPath.
// It returns storage.ErrDisabled when history is off.
func OpenHistory(cfgPath string) (storage.Store, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	return storage.Open(sc, logx.Nop())
}

// sourceController tags runs started through a transport.
type sourceController struct {
	a      *App
	source string
}

func (c sourceController) DefaultSeconds() int          { return c.a.DefaultSeconds() }
func (c sourceController) StartTimer(seconds int) error { return c.a.startTimer(seconds, c.source) }
func (c sourceController) StopTimer()                   { c.a.StopTimer() }
func (c sourceController) Snapshot() countdown.Snapshot { return c.a.Snapshot() }
