package jobs

import (
	"context"
	"fmt"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
)

// TaskRecurring spawns today's instance for every recurring template whose
// rule fires today. At most one instance per template per calendar day: the
// createdAt scan skips templates that already generated, and the store's
// unique (parent_id, instance_date) index backstops concurrent runs.
func (d Deps) TaskRecurring(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	templates, err := d.Tasks.RecurringTemplates(ctx, now, d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find recurring templates: %w", err)
	}
	res := Result{Timestamp: now}

	for _, tmpl := range templates {
		tmpl := tmpl
		cr := CandidateResult{ID: tmpl.ID}
		generated := false
		d.candidateStep(tmpl.ID, &cr, func() error {
			if tmpl.RecurrenceRule == nil {
				return nil
			}
			if !d.Recurrence.ShouldGenerateOn(*tmpl.RecurrenceRule, now, tmpl.ExceptionDates) {
				return nil
			}
			exists, err := d.Tasks.InstanceExistsOn(ctx, tmpl.ID, now)
			if err != nil {
				return fmt.Errorf("check existing instance: %w", err)
			}
			if exists {
				return nil
			}

			inst, err := d.Tasks.CreateTaskInstance(ctx, tmpl, now, now)
			if err != nil {
				return err
			}
			generated = true

			members, err := d.Tasks.TaskMemberIDs(ctx, inst.ID)
			if err != nil {
				return fmt.Errorf("resolve members: %w", err)
			}
			targets, err := d.escalationTargets(ctx, inst.AssigneeID, members, inst.ProjectID, []escalation.Tier{escalation.TierSelf})
			if err != nil {
				return err
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:   "New task: " + inst.Title,
				Message: fmt.Sprintf("Recurring task %q was scheduled for today.", inst.Title),
				Type:    "TASK_CREATED",
				Link:    d.Cfg.BaseLink + "/tasks/" + inst.ID,
			}, &cr)
			return nil
		})
		res.Results = append(res.Results, cr)
		if generated || cr.Error != "" {
			res.Processed++
		}
	}
	return res, nil
}
