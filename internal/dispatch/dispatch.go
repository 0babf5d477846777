// Package dispatch fans one logical event out to one recipient across the
// three channels: in-app record, push, email. Channels are independent and
// additive; a provider outage on one never blocks the others, and nothing
// here ever aborts the calling job run.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"taskpilot/internal/store"
	"taskpilot/pkg/logx"
)

// Event is the channel-agnostic payload of one notification.
type Event struct {
	Title    string
	Message  string
	Type     string
	Link     string
	Critical bool
}

// Recipient carries the delivery preferences the dispatcher branches on.
type Recipient struct {
	UserID     string
	Email      string
	Name       string
	InApp      bool
	EmailsOn   bool
	PushChatID int64
}

func RecipientFromUser(u store.User) Recipient {
	return Recipient{
		UserID:     u.ID,
		Email:      u.Email,
		Name:       u.Name,
		InApp:      u.NotifyInApp,
		EmailsOn:   u.NotifyEmail,
		PushChatID: u.PushChatID,
	}
}

// Result reports what happened per channel. NotificationCreated is the
// source of truth for "was this recipient notified"; the attempted flags
// only say the best-effort call was made, not that it landed.
type Result struct {
	NotificationCreated bool
	PushAttempted       bool
	EmailAttempted      bool
}

// NotificationStore creates the durable in-app record.
type NotificationStore interface {
	CreateNotification(ctx context.Context, userID, title, message, typ, link string, now time.Time) (store.Notification, error)
}

// Pusher delivers a push for an already-created notification record.
type Pusher interface {
	SendPush(ctx context.Context, chatID int64, notificationID, title, message, link string) error
}

// Mailer sends a templated email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type Dispatcher struct {
	store  NotificationStore
	pusher Pusher // nil when push is not configured
	mailer Mailer // nil when email is not configured
	log    logx.Logger

	// Token buckets shared across all recipients so an escalation storm
	// cannot flood a provider.
	pushLimit  *rate.Limiter
	emailLimit *rate.Limiter
}

func New(st NotificationStore, pusher Pusher, mailer Mailer, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		store:      st,
		pusher:     pusher,
		mailer:     mailer,
		log:        log,
		pushLimit:  rate.NewLimiter(rate.Limit(10), 10),
		emailLimit: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Dispatch runs the three channel steps for one recipient. Only an in-app
// insert failure is surfaced in the result (as NotificationCreated=false);
// push and email failures are logged and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, rcpt Recipient, ev Event) Result {
	var res Result
	log := d.log.With(logx.String("user", rcpt.UserID), logx.String("type", ev.Type))

	var record store.Notification
	if rcpt.InApp {
		n, err := d.store.CreateNotification(ctx, rcpt.UserID, ev.Title, ev.Message, ev.Type, ev.Link, time.Now().UTC())
		if err != nil {
			log.Error("in-app notification insert failed", logx.Err(err))
		} else {
			record = n
			res.NotificationCreated = true
		}
	}

	// Push rides on the created record; without one there is nothing to
	// deep-link to.
	if res.NotificationCreated && d.pusher != nil && rcpt.PushChatID != 0 {
		res.PushAttempted = true
		if err := d.guarded(ctx, d.pushLimit, func(ctx context.Context) error {
			return d.pusher.SendPush(ctx, rcpt.PushChatID, record.ID, ev.Title, ev.Message, ev.Link)
		}); err != nil {
			log.Warn("push delivery failed", logx.Err(err))
		}
	}

	if d.mailer != nil && rcpt.EmailsOn && rcpt.Email != "" {
		res.EmailAttempted = true
		if err := d.guarded(ctx, d.emailLimit, func(ctx context.Context) error {
			return d.mailer.Send(ctx, rcpt.Email, ev.Title, emailBody(rcpt, ev))
		}); err != nil {
			log.Warn("email delivery failed", logx.Err(err))
		}
	}

	return res
}

// guarded applies the channel rate limit and converts panics from provider
// SDKs into plain errors.
func (d *Dispatcher) guarded(ctx context.Context, lim *rate.Limiter, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panic: %v", r)
			d.log.Error("panic in notification channel",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	if lim != nil {
		if werr := lim.Wait(ctx); werr != nil {
			return werr
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return fn(callCtx)
}

func emailBody(rcpt Recipient, ev Event) string {
	badge := ""
	if ev.Critical {
		badge = `<p><strong>CRITICAL</strong></p>`
	}
	link := ""
	if ev.Link != "" {
		link = fmt.Sprintf(`<p><a href="%s">Open in taskpilot</a></p>`, ev.Link)
	}
	return fmt.Sprintf(`<html><body>%s<p>Hi %s,</p><p>%s</p>%s</body></html>`,
		badge, rcpt.Name, ev.Message, link)
}
