package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
	"taskpilot/internal/eventbus"
	"taskpilot/internal/store"
	"taskpilot/pkg/logx"
)

// escalationTargets resolves the recipient set for the currently active
// tiers, deduplicated by user id, in tier order. Missing links in the chain
// (no manager, unknown owner) shrink the set instead of failing the
// candidate.
func (d Deps) escalationTargets(ctx context.Context, ownerID string, memberIDs []string, projectID *string, tiers []escalation.Tier) ([]store.User, error) {
	seen := map[string]bool{}
	var out []store.User
	add := func(u *store.User) {
		if u == nil || !u.Active || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		out = append(out, *u)
	}

	for _, tier := range tiers {
		switch tier {
		case escalation.TierSelf:
			owner, err := d.Directory.UserByID(ctx, ownerID)
			if err != nil {
				return nil, fmt.Errorf("resolve owner %s: %w", ownerID, err)
			}
			add(owner)
			for _, id := range memberIDs {
				m, err := d.Directory.UserByID(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("resolve member %s: %w", id, err)
				}
				add(m)
			}
		case escalation.TierManager:
			mgr, err := d.Directory.ManagerOf(ctx, ownerID)
			if err != nil {
				return nil, fmt.Errorf("resolve manager of %s: %w", ownerID, err)
			}
			add(mgr)
		case escalation.TierApprover:
			approvers, err := d.Directory.OrgApprovers(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolve org approvers: %w", err)
			}
			for i := range approvers {
				add(&approvers[i])
			}
			if projectID != nil {
				pas, err := d.Directory.ProjectApprovers(ctx, *projectID)
				if err != nil {
					return nil, fmt.Errorf("resolve project approvers: %w", err)
				}
				for i := range pas {
					add(&pas[i])
				}
			}
		}
	}
	return out, nil
}

// dispatchAll fans the event out to every recipient, accumulating channel
// counters into the candidate result. Per-recipient channel failures are
// already isolated inside the dispatcher.
func (d Deps) dispatchAll(ctx context.Context, recipients []store.User, ev dispatch.Event, cr *CandidateResult) {
	for i := range recipients {
		res := d.Dispatcher.Dispatch(ctx, dispatch.RecipientFromUser(recipients[i]), ev)
		cr.Recipients++
		if res.NotificationCreated {
			cr.Notified++
		}
		if res.EmailAttempted {
			cr.Emails++
		}
	}
}

// candidateStep runs one candidate's processing with panic isolation. A
// failure lands in the result entry; the loop moves on.
func (d Deps) candidateStep(id string, cr *CandidateResult, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			cr.Error = fmt.Sprintf("panic: %v", r)
			d.Log.Error("panic processing candidate",
				logx.String("candidate", id), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	if err := fn(); err != nil {
		cr.Error = err.Error()
		d.Log.Warn("candidate processing failed",
			logx.String("candidate", id), logx.Err(err))
	}
}

// publishSummary emits the run's structured summary on the bus and logs it.
func (d Deps) publishSummary(jobID string, started time.Time, res Result, runErr error) {
	errStr := ""
	if runErr != nil {
		errStr = runErr.Error()
	}
	if d.Bus != nil {
		d.Bus.Publish(eventbus.Event{
			Type: "job.summary",
			Time: time.Now(),
			Data: Summary{
				JobID:     jobID,
				Started:   started,
				Duration:  time.Since(started),
				Processed: res.Processed,
				Error:     errStr,
			},
		})
	}
	log := d.Log.With(logx.String("job", jobID), logx.Int("processed", res.Processed))
	if runErr != nil {
		log.Warn("run summary", logx.Err(runErr))
		return
	}
	if res.Processed > 0 {
		log.Info("run summary", logx.Time("at", res.Timestamp))
	} else {
		log.Debug("run summary", logx.Time("at", res.Timestamp))
	}
}
