package jobs

import (
	"context"
	"fmt"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
	"taskpilot/internal/store"
)

// TaskOverdue recomputes overdue severity for active tasks past their due
// date and escalates along the day-1/3/7 ladder. Derived fields are
// recomputed from scratch every pass, so re-running after a crash writes
// the same values again.
func (d Deps) TaskOverdue(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	tasks, err := d.Tasks.OverdueTasks(ctx, now, d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find overdue candidates: %w", err)
	}
	res := Result{Timestamp: now}

	for _, t := range tasks {
		t := t
		cr := CandidateResult{ID: t.ID}
		d.candidateStep(t.ID, &cr, func() error {
			daysPast := escalation.DaysSince(*t.DueDate, now)
			tiers := escalation.Tiers(daysPast, d.Cfg.TaskEscalation)
			sla := escalation.Status(daysPast, d.Cfg.TaskEscalation)

			if len(tiers) > 0 {
				members, err := d.Tasks.TaskMemberIDs(ctx, t.ID)
				if err != nil {
					return fmt.Errorf("resolve members: %w", err)
				}
				targets, err := d.escalationTargets(ctx, t.AssigneeID, members, t.ProjectID, tiers)
				if err != nil {
					return err
				}
				critical := escalation.Critical(daysPast, d.Cfg.TaskEscalation)
				title := fmt.Sprintf("Overdue: %s (%d days)", t.Title, int(daysPast))
				if critical {
					title = "CRITICAL " + title
				}
				d.dispatchAll(ctx, targets, dispatch.Event{
					Title:    title,
					Message:  fmt.Sprintf("Task %q was due %s and is now %s.", t.Title, t.DueDate.Format("Jan 2"), sla),
					Type:     "TASK_OVERDUE",
					Link:     d.Cfg.BaseLink + "/tasks/" + t.ID,
					Critical: critical,
				}, &cr)
			}

			return d.Tasks.UpdateOverdueState(ctx, t.ID, int(daysPast), store.SLAStatus(sla), now)
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}
	return res, nil
}
