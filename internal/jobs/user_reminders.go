package jobs

import (
	"context"
	"fmt"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
)

// UserReminders fires user-owned reminder rules whose time-of-day and
// weekday match the current minute. The 23h fired-marker guard (applied in
// the query) makes duplicate minute ticks harmless.
func (d Deps) UserReminders(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	rules, err := d.Directory.DueReminderRules(ctx, now, d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find due reminder rules: %w", err)
	}
	res := Result{Timestamp: now}

	for _, rule := range rules {
		rule := rule
		cr := CandidateResult{ID: rule.ID}
		d.candidateStep(rule.ID, &cr, func() error {
			targets, err := d.escalationTargets(ctx, rule.UserID, nil, nil, []escalation.Tier{escalation.TierSelf})
			if err != nil {
				return err
			}
			msg := "Your scheduled reminder."
			if rule.ActivityType != "" {
				msg = fmt.Sprintf("Time to log your %s activity.", rule.ActivityType)
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:   "Reminder",
				Message: msg,
				Type:    "USER_REMINDER",
				Link:    d.Cfg.BaseLink + "/activities",
			}, &cr)
			return d.Directory.MarkReminderRuleFired(ctx, rule.ID, now)
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}
	return res, nil
}
