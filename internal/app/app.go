package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"notifyd/internal/config"
	"notifyd/internal/delivery"
	"notifyd/internal/httpapi"
	"notifyd/internal/scheduler"
	"notifyd/internal/storage"
	logx "notifyd/pkg/logx"
)

// App wires config, logging, storage, delivery channels, the scheduler
// engine and the HTTP surface into one lifecycle.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store    storage.Store
	registry *delivery.Registry
	limits   map[string]*delivery.Limited
	sched    *scheduler.Service
	api      *httpapi.Server

	watchStop context.CancelFunc
	cfgCh     chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	return &App{
		cfgm: cfgm,
		logs: logs,
		log:  log.With(logx.String("comp", "app")),
	}, nil
}

// Start brings the system up in dependency order. Reconciliation runs
// to completion before the HTTP listener binds, so a caller can never
// cancel a job that has not been rehydrated yet. A failure partway
// through unwinds whatever already came up.
func (a *App) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.unwind(ctx)
		}
	}()

	cfg := a.cfgm.Get()
	if cfg == nil {
		return errors.New("no config loaded")
	}

	// Storage first: an unreadable job store is fatal. Running with a
	// silently empty job set would drop every scheduled delivery.
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	a.store = store

	registry, err := a.buildChannels(ctx, cfg)
	if err != nil {
		return err
	}
	a.registry = registry

	timeout, err := config.ParseDurationOrDefault("scheduler.delivery_timeout", cfg.Scheduler.DeliveryTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(scheduler.Config{
		Workers:         cfg.Scheduler.Workers,
		QueueSize:       cfg.Scheduler.QueueSize,
		DeliveryTimeout: timeout,
		HistorySize:     cfg.Scheduler.HistorySize,
		Timezone:        cfg.Scheduler.Timezone,
		Missed:          scheduler.MissedPolicy(cfg.Scheduler.MissedPolicy),
	}, store, registry, a.log.With(logx.String("comp", "scheduler")))
	a.sched.Start(ctx)

	jobs, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	if err := a.sched.Reconcile(ctx, jobs); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	readTO, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return err
	}
	writeTO, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return err
	}
	idleTO, err := config.ParseDurationField("http.idle_timeout", cfg.HTTP.IdleTimeout)
	if err != nil {
		return err
	}
	a.api = httpapi.New(httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
	}, a.sched, a.log.With(logx.String("comp", "http")))
	if err := a.api.Start(ctx); err != nil {
		return fmt.Errorf("start http: %w", err)
	}

	// Config hot reload: logging changes apply live; everything else
	// requires a restart and is logged as such.
	wctx, cancel := context.WithCancel(ctx)
	a.watchStop = cancel
	a.cfgCh = a.cfgm.Subscribe(1)
	go func() { _ = a.cfgm.Watch(wctx) }()
	go a.applyLoop(wctx)

	// Under systemd Type=notify this flips the unit to active; outside
	// systemd it is a no-op.
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err == nil && sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("notifyd started",
		logx.Int("jobs", len(jobs)),
		logx.Any("channels", registry.Channels()))
	return nil
}

// unwind tears down whatever a failed Start left running, in reverse
// bring-up order.
func (a *App) unwind(ctx context.Context) {
	if a.api != nil {
		a.api.Stop(ctx)
		a.api = nil
	}
	if a.sched != nil {
		a.sched.Stop(ctx)
		a.sched = nil
	}
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchStop != nil {
		a.watchStop()
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	if a.api != nil {
		a.api.Stop(ctx)
	}
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("notifyd stopped")
	_ = a.logs.Close()
	return nil
}

func (a *App) buildChannels(ctx context.Context, cfg *config.Config) (*delivery.Registry, error) {
	log := a.log.With(logx.String("comp", "delivery"))
	registry := delivery.NewRegistry(log)
	a.limits = map[string]*delivery.Limited{}

	add := func(d delivery.Deliverer, perSec int) {
		lim := delivery.WithRateLimit(d, perSec)
		a.limits[d.Channel()] = lim
		registry.Register(lim)
	}

	if c := cfg.Channels.Email; c != nil {
		em, err := delivery.NewEmailer(delivery.EmailConfig{
			Host:   c.Host,
			Port:   c.Port,
			Secure: c.Secure,
			User:   c.User,
			Pass:   c.Pass,
			From:   c.From,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("channels.email: %w", err)
		}
		// Best-effort SMTP probe; the relay may come up later.
		if err := em.Verify(ctx); err != nil {
			log.Warn("smtp verify failed", logx.String("host", c.Host), logx.Err(err))
		} else {
			log.Info("smtp ready", logx.String("host", c.Host))
		}
		add(em, c.RatePerSec)
	}

	if c := cfg.Channels.SMS; c != nil {
		sm, err := delivery.NewSMSSender(delivery.SMSConfig{
			AccountSID:    c.AccountSID,
			AuthToken:     c.AuthToken,
			From:          c.From,
			BaseURL:       c.BaseURL,
			CountryPrefix: c.CountryPrefix,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("channels.sms: %w", err)
		}
		add(sm, c.RatePerSec)
	}

	if c := cfg.Channels.Telegram; c != nil {
		tg, err := delivery.NewTelegramSender(delivery.TelegramConfig{
			Token: c.Token,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("channels.telegram: %w", err)
		}
		add(tg, c.RatePerSec)
	}

	if len(registry.Channels()) == 0 {
		a.log.Warn("no delivery channels configured; every job will fail at fire time")
	}
	return registry, nil
}

// applyRates hot-applies per-channel rate limits for channels that were
// built at startup. Adding or removing a channel needs a restart.
func (a *App) applyRates(cfg *config.Config) {
	if lim, ok := a.limits["email"]; ok && cfg.Channels.Email != nil {
		lim.SetRate(cfg.Channels.Email.RatePerSec)
	}
	if lim, ok := a.limits["sms"]; ok && cfg.Channels.SMS != nil {
		lim.SetRate(cfg.Channels.SMS.RatePerSec)
	}
	if lim, ok := a.limits["telegram"]; ok && cfg.Channels.Telegram != nil {
		lim.SetRate(cfg.Channels.Telegram.RatePerSec)
	}
}

func (a *App) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.applyRates(cfg)
			a.log.Info("logging and rate limits applied; storage/scheduler/channel changes need a restart")
		}
	}
}
