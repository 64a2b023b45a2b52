// Package telegram exposes the timer as Telegram commands and mirrors its
// notifications into a status message.
package telegram

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"eggtimer/internal/countdown"
	rtsup "eggtimer/internal/runtime/supervisor"
	kit "eggtimer/internal/transport"
	logx "eggtimer/pkg/logx"
)

type Config struct {
	Token        string
	OwnerUserIDs []int64
	// Home receives log alerts and, until a command picks another chat,
	// status messages.
	Home           kit.ChatTarget
	PollTimeout    time.Duration
	EditRatePerSec int
}

// Controller is the part of the app the commands drive.
type Controller interface {
	// DefaultSeconds is used by a bare /timer.
	DefaultSeconds() int
	StartTimer(seconds int) error
	StopTimer()
	Snapshot() countdown.Snapshot
}

// Bot owns the telebot poller, the command handlers and the status Observer.
type Bot struct {
	cfg  Config
	log  logx.Logger
	ctrl Controller

	tg  *tele.Bot
	m   kit.Messenger
	obs *Observer

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, ctrl Controller, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tg, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	b := newBot(cfg, ctrl, &messenger{bot: tg}, log)
	b.tg = tg
	b.registerHandlers()
	return b, nil
}

func newBot(cfg Config, ctrl Controller, m kit.Messenger, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram"))
	b := &Bot{cfg: cfg, log: log, ctrl: ctrl, m: m}
	b.obs = NewObserver(m, cfg.EditRatePerSec, log)
	b.obs.SetTarget(cfg.Home)
	return b
}

// Observer is the countdown.Listener that keeps the status message current.
func (b *Bot) Observer() *Observer { return b.obs }

func (b *Bot) registerHandlers() {
	owner := func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || !b.isOwner(c.Sender().ID) {
				b.log.Debug("command rejected (not owner)", logx.String("text", c.Text()))
				return nil
			}
			return next(c)
		}
	}
	reply := func(h func(to kit.ChatTarget, args []string) string) tele.HandlerFunc {
		return func(c tele.Context) error {
			m := c.Message()
			if m == nil || m.Chat == nil {
				return nil
			}
			to := kit.ChatTarget{ChatID: m.Chat.ID, ThreadID: m.ThreadID}
			return c.Send(h(to, c.Args()), &tele.SendOptions{ThreadID: to.ThreadID})
		}
	}
	b.tg.Handle("/timer", reply(b.cmdTimer), owner)
	b.tg.Handle("/stop", reply(b.cmdStop), owner)
	b.tg.Handle("/status", reply(b.cmdStatus), owner)
	b.tg.Handle("/help", reply(func(kit.ChatTarget, []string) string { return helpText }), owner)
}

func (b *Bot) isOwner(id int64) bool {
	return slices.Contains(b.cfg.OwnerUserIDs, id)
}

// Start runs the poller and the status Observer until Stop or ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return nil
	}
	b.running = true
	b.sup = rtsup.New(ctx,
		rtsup.WithLogger(b.log),
		// telegram errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := b.sup

	sup.Go("status.observer", b.obs.Run)
	if b.tg == nil {
		return nil
	}
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		b.tg.Stop()
	})
	// telebot's Start can return on its own; restart it while ctx is live.
	sup.GoRestart("telebot.poll", func(context.Context) error {
		b.log.Info("polling started")
		b.tg.Start()
		b.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop gives the observer time to flush terminal status but never blocks
// shutdown for long on the getUpdates long-poll.
func (b *Bot) Stop(ctx context.Context) error {
	b.runMu.Lock()
	sup := b.sup
	b.sup = nil
	wasRunning := b.running
	b.running = false
	b.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, flushTimeout+time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			b.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		b.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendLog posts text to the home chat. It implements logx.Sender.
func (b *Bot) SendLog(ctx context.Context, text string) error {
	if b.cfg.Home.IsZero() {
		return errors.New("telegram: no home chat configured")
	}
	for _, chunk := range splitText(text, textLimit) {
		if _, err := b.m.SendText(ctx, b.cfg.Home, chunk, &kit.SendOptions{DisablePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// messenger is the telebot-backed kit.Messenger.
type messenger struct {
	bot *tele.Bot
}

func (m *messenger) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := m.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOptions(opt, to.ThreadID))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (m *messenger) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := m.bot.Edit(msg, text, sendOptions(opt, 0))
	return err
}

func sendOptions(opt *kit.SendOptions, threadID int) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt != nil {
		so.ParseMode = tele.ParseMode(opt.ParseMode)
		so.DisableWebPagePreview = opt.DisablePreview
	}
	return so
}
