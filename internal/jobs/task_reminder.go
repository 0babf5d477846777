package jobs

import (
	"context"
	"fmt"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
)

// TaskReminder notifies assignees and members of tasks whose reminder
// instant has passed. The cooldown marker keeps the 5-minute tick from
// re-notifying: a candidate re-enters the set only after the cooldown
// (default 24h) elapses.
func (d Deps) TaskReminder(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	tasks, err := d.Tasks.DueReminderTasks(ctx, now, d.Cfg.ReminderCooldown, d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find reminder candidates: %w", err)
	}
	res := Result{Timestamp: now}
	if len(tasks) == 0 {
		return res, nil
	}

	for _, t := range tasks {
		t := t
		cr := CandidateResult{ID: t.ID}
		d.candidateStep(t.ID, &cr, func() error {
			members, err := d.Tasks.TaskMemberIDs(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("resolve members: %w", err)
			}
			targets, err := d.escalationTargets(ctx, t.AssigneeID, members, nil, []escalation.Tier{escalation.TierSelf})
			if err != nil {
				return err
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:   "Reminder: " + t.Title,
				Message: fmt.Sprintf("Task %q has a reminder set for %s.", t.Title, t.ReminderDate.Format("Jan 2 15:04")),
				Type:    "TASK_REMINDER",
				Link:    d.Cfg.BaseLink + "/tasks/" + t.ID,
			}, &cr)
			return d.Tasks.MarkReminderNotified(ctx, t.ID, now)
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}
	return res, nil
}
