// Package scheduler triggers registered jobs on cron schedules and executes
// them on a bounded worker pool with a per-run retry budget. Jobs are
// independent: a slow or failing run never blocks other jobs beyond pool
// capacity.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"taskpilot/internal/eventbus"
	"taskpilot/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddCron registers a job under a stable id. Registration is upsert-by-id so
// repeated wiring (tests, restarts) never double-registers. May be called
// before or after Start.
func (s *Service) AddCron(id, name, spec string, timeout time.Duration, opt JobOptions, run func(ctx context.Context) error) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("job id required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %s: invalid cron spec %q: %w", id, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	d := jobDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		run:     run,
		opt:     opt.withDefaults(),
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
			return err
		}
	}
	s.log.Debug("job registered", logx.String("job", id), logx.String("spec", spec))
	return nil
}

func (s *Service) removeLocked(id string) {
	n := 0
	for _, d := range s.defs {
		if d.id == id {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
}

func (s *Service) addCronLocked(d *jobDef) error {
	eid, err := s.c.AddFunc(d.spec, func() {
		if !d.opt.AllowOverlap {
			d.state.mu.Lock()
			running := d.state.running
			d.state.mu.Unlock()
			if running {
				s.log.Debug("run skipped, previous still running", logx.String("job", d.id))
				s.publish("run.skipped", RunEvent{JobID: d.id, Name: d.name, Started: time.Now()})
				return
			}
		}
		s.enqueue(execTask{id: d.id, name: d.name, timeout: d.timeout, run: d.run, opt: d.opt, state: d.state})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// Start launches the cron trigger and the worker pool.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return // already running
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.queue = make(chan execTask, 64)

	s.loc = s.loadLocation()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("job schedule failed", logx.String("job", s.defs[i].id), logx.Err(err))
		}
	}

	runCtx, stopCh, queue := s.runCtx, s.stopCh, s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", workers),
		logx.String("tz", s.loc.String()),
		logx.Int("jobs", len(s.defs)))
}

// Stop halts triggers and waits for in-flight runs up to ctx's deadline.
// Unfinished candidate pages are simply picked up on the next tick after a
// restart; the scan design is idempotent.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.stopCh = nil
	s.c = nil
	s.runCancel = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped")
}

// Apply swaps the service config at runtime. If the service is running it
// is drained and relaunched with the new settings; registered jobs carry
// over.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	running := s.stopCh != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !running {
		return
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	s.Stop(stopCtx)
	cancel()
	s.Start(ctx)
	s.log.Info("scheduler config applied",
		logx.Int("workers", cfg.Workers), logx.String("tz", cfg.Timezone))
}

// Trigger enqueues one immediate run of a registered job, outside its cron
// schedule. Used at startup for catch-up and by operator tooling.
func (s *Service) Trigger(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.defs {
		if s.defs[i].id == id {
			d := s.defs[i]
			s.enqueueLocked(execTask{id: d.id, name: d.name, timeout: d.timeout, run: d.run, opt: d.opt, state: d.state})
			return nil
		}
	}
	return fmt.Errorf("unknown job %q", id)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Timezone: s.cfg.Timezone,
		Workers:  s.cfg.Workers,
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
	}
	for _, d := range s.defs {
		info := JobInfo{ID: d.id, Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		snap.Jobs = append(snap.Jobs, info)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) enqueue(t execTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(t)
}

func (s *Service) enqueueLocked(t execTask) {
	if s.queue == nil {
		s.log.Debug("scheduler not running; dropping run", logx.String("job", t.id))
		return
	}
	select {
	case s.queue <- t:
	default:
		s.log.Warn("scheduler queue full; dropping run",
			logx.String("job", t.id), logx.Int("queue_len", len(s.queue)))
	}
}

func (s *Service) publish(typ string, ev RunEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
