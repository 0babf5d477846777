// Package app assembles the process: config, logging, storage, channels,
// scheduler, and the job registry. Construction happens once in New; Start
// and Stop bracket the run.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskpilot/internal/config"
	"taskpilot/internal/dispatch"
	"taskpilot/internal/eventbus"
	"taskpilot/internal/jobs"
	"taskpilot/internal/mail"
	"taskpilot/internal/push"
	"taskpilot/internal/recurrence"
	"taskpilot/internal/runlog"
	"taskpilot/internal/scheduler"
	"taskpilot/internal/store"
	"taskpilot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	store  *store.Store
	runs   *runlog.Store
	sched  *scheduler.Service
	pusher *push.Telegram

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads config and builds every component. Nothing runs yet.
func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "boot"))

	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	st, err := store.Open(cfg.Database.DSN, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrateEnabled() {
		if err := st.Migrate(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	var pusher *push.Telegram
	var pushFor dispatch.Pusher
	if cfg.Telegram.Token != "" {
		pusher, err = push.New(push.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: time.Duration(cfg.Telegram.PollTimeout),
		}, log.With(logx.String("comp", "push")))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		pushFor = pusher
	}

	var mailFor dispatch.Mailer
	if cfg.SMTP.Enabled {
		mailFor = mail.New(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	bus := eventbus.New()

	var runs *runlog.Store
	if cfg.RunLog.Enabled {
		runs, err = runlog.Open(runlog.Config{
			Path:        cfg.RunLog.Path,
			BusyTimeout: time.Duration(cfg.RunLog.BusyTimeout),
			Retention:   time.Duration(cfg.RunLog.Retention),
		}, log.With(logx.String("comp", "runlog")))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		log.Info("run log enabled", logx.String("path", cfg.RunLog.Path))
	}

	sched := scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: time.Duration(cfg.Scheduler.DefaultTimeout),
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "scheduler")), bus)

	deps := jobs.Deps{
		Tasks:      st,
		Sheets:     st,
		Directory:  st,
		Dispatcher: dispatch.New(st, pushFor, mailFor, log.With(logx.String("comp", "dispatch"))),
		Recurrence: recurrence.New(log.With(logx.String("comp", "recurrence"))),
		Bus:        bus,
		Log:        log.With(logx.String("comp", "jobs")),
		Cfg: jobs.Config{
			PageSize:         cfg.Jobs.PageSize,
			ReminderCooldown: time.Duration(cfg.Jobs.ReminderCooldown),
			TaskEscalation:   cfg.Jobs.TaskEscalation.Thresholds(),
			SheetEscalation:  cfg.Jobs.SheetEscalation.Thresholds(),
			ActivityMaxHours: cfg.Jobs.ActivityMaxHours,
			BaseLink:         cfg.Jobs.BaseLink,
		},
	}
	if err := jobs.Register(sched, deps); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		runs:    runs,
		sched:   sched,
		pusher:  pusher,
	}, nil
}

// Start launches the scheduler and the background loops. It returns once
// everything is running.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.runs != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runs.Listen(runCtx, a.bus)
		}()
	}

	a.sched.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx, sub)
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

// reloadLoop applies hot-reloadable config sections. Logging applies live;
// everything constructed in New (database, channels, schedules) needs a
// restart and is called out in the log instead.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
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
			if prev != nil {
				if cfg.Database != prev.Database {
					a.log.Warn("database config changed; restart required")
				}
				if cfg.SMTP != prev.SMTP || cfg.Telegram != prev.Telegram {
					a.log.Warn("channel config changed; restart required")
				}
				if cfg.Scheduler != prev.Scheduler {
					a.sched.Apply(ctx, scheduler.Config{
						Workers:        cfg.Scheduler.Workers,
						DefaultTimeout: time.Duration(cfg.Scheduler.DefaultTimeout),
						HistorySize:    cfg.Scheduler.HistorySize,
						Timezone:       cfg.Scheduler.Timezone,
					})
				}
				if cfg.Jobs != prev.Jobs {
					a.log.Warn("jobs config changed; restart required")
				}
			}
			prev = cfg
			a.log.Info("config reloaded")
		}
	}
}

// Trigger runs one job immediately, outside its schedule.
func (a *App) Trigger(jobID string) error { return a.sched.Trigger(jobID) }

// Stop drains in-flight runs up to ctx's deadline and releases resources.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.sched.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not drain before deadline")
	}

	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			a.log.Warn("run log close failed", logx.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
