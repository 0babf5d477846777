package scheduler

import (
	"context"
	"math/rand"
	"time"

	"taskpilot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan execTask) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, stopCh, t)
		}
	}
}

// execOne runs one job invocation with the job's retry budget. Every retry
// re-invokes the whole handler; handlers are idempotent by construction
// (pure reads plus set-to-computed-value writes).
func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, t execTask) {
	start := time.Now()
	s.publish("run.started", RunEvent{JobID: t.id, Name: t.name, Started: start})

	if t.state != nil {
		t.state.mu.Lock()
		t.state.running = true
		t.state.mu.Unlock()
		defer func() {
			t.state.mu.Lock()
			t.state.running = false
			t.state.mu.Unlock()
		}()
	}

	maxAttempts := 1 + t.opt.RetryMax
	var err error
	attempts := 0
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		// Per-attempt timeout so a timed-out first attempt doesn't poison
		// the retries.
		runCtx := ctx
		var cancel context.CancelFunc
		if t.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		}
		err = t.run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(t.opt, attempt)
		s.log.Debug("run retry scheduled",
			logx.String("job", t.id), logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			tmr.Stop()
			break attemptLoop
		case <-tmr.C:
		}
	}

	dur := time.Since(start)
	item := HistoryItem{JobID: t.id, Name: t.name, Started: start, Duration: dur, Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("run failed",
			logx.String("job", t.id), logx.Err(err),
			logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish("run.failed", RunEvent{JobID: t.id, Name: t.name, Started: start, Duration: dur, Attempts: attempts, Error: item.Error})
	} else {
		s.log.Debug("run completed",
			logx.String("job", t.id), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish("run.finished", RunEvent{JobID: t.id, Name: t.name, Started: start, Duration: dur, Attempts: attempts})
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	limit := s.cfg.HistorySize
	if limit <= 0 {
		limit = 200
	}
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

// backoffDelay grows exponentially from RetryBase, capped at RetryMaxDelay,
// with ±RetryJitter applied. retry starts at 1 for the first retry.
func backoffDelay(opt JobOptions, retry int) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	if opt.RetryJitter > 0 {
		r := (rand.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
	}
	if d < 0 {
		d = 0
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}
