package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskpilot/internal/store"
	"taskpilot/pkg/logx"
)

type fakeNotifStore struct {
	created []store.Notification
	err     error
}

func (f *fakeNotifStore) CreateNotification(_ context.Context, userID, title, message, typ, link string, now time.Time) (store.Notification, error) {
	if f.err != nil {
		return store.Notification{}, f.err
	}
	n := store.Notification{ID: "n-1", UserID: userID, Title: title, Message: message, Type: typ, Link: link, CreatedAt: now}
	f.created = append(f.created, n)
	return n, nil
}

type fakePusher struct {
	calls int
	err   error
	panic bool
}

func (f *fakePusher) SendPush(context.Context, int64, string, string, string, string) error {
	f.calls++
	if f.panic {
		panic("provider sdk blew up")
	}
	return f.err
}

type fakeMailer struct {
	to   []string
	html []string
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, _, html string) error {
	f.to = append(f.to, to)
	f.html = append(f.html, html)
	return f.err
}

func allOn() Recipient {
	return Recipient{UserID: "u1", Email: "u1@example.com", Name: "Ada", InApp: true, EmailsOn: true, PushChatID: 42}
}

func TestDispatchAllChannels(t *testing.T) {
	t.Parallel()
	st := &fakeNotifStore{}
	push := &fakePusher{}
	mail := &fakeMailer{}
	d := New(st, push, mail, logx.Nop())

	res := d.Dispatch(context.Background(), allOn(), Event{Title: "T", Message: "M", Type: "TASK_REMINDER", Link: "https://x/t/1"})
	if !res.NotificationCreated || !res.PushAttempted || !res.EmailAttempted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(st.created) != 1 || push.calls != 1 || len(mail.to) != 1 {
		t.Fatalf("channel calls: created=%d push=%d mail=%d", len(st.created), push.calls, len(mail.to))
	}
}

func TestDispatchChannelFailuresAreIsolated(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		pushErr error
		mailErr error
		panics  bool
	}{
		{name: "push error", pushErr: errors.New("telegram down")},
		{name: "email error", mailErr: errors.New("smtp down")},
		{name: "push panic", panics: true},
		{name: "both failing", pushErr: errors.New("a"), mailErr: errors.New("b")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeNotifStore{}
			push := &fakePusher{err: tt.pushErr, panic: tt.panics}
			mail := &fakeMailer{err: tt.mailErr}
			d := New(st, push, mail, logx.Nop())

			res := d.Dispatch(context.Background(), allOn(), Event{Title: "T", Message: "M", Type: "X"})
			// A broken push or email provider never loses the in-app record
			// and never stops the other channel from being tried.
			if !res.NotificationCreated {
				t.Fatal("in-app record should still be created")
			}
			if !res.PushAttempted || !res.EmailAttempted {
				t.Fatalf("both channels should be attempted: %+v", res)
			}
		})
	}
}

func TestDispatchRespectsPreferences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rcpt Recipient
		want Result
	}{
		{
			name: "in-app only",
			rcpt: Recipient{UserID: "u1", InApp: true},
			want: Result{NotificationCreated: true},
		},
		{
			name: "no chat id disables push",
			rcpt: Recipient{UserID: "u1", InApp: true, EmailsOn: true, Email: "e@x"},
			want: Result{NotificationCreated: true, EmailAttempted: true},
		},
		{
			name: "email off",
			rcpt: Recipient{UserID: "u1", InApp: true, PushChatID: 9, Email: "e@x"},
			want: Result{NotificationCreated: true, PushAttempted: true},
		},
		{
			name: "email on but address missing",
			rcpt: Recipient{UserID: "u1", EmailsOn: true},
			want: Result{},
		},
		{
			name: "everything off",
			rcpt: Recipient{UserID: "u1"},
			want: Result{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := New(&fakeNotifStore{}, &fakePusher{}, &fakeMailer{}, logx.Nop())
			got := d.Dispatch(context.Background(), tt.rcpt, Event{Title: "T", Message: "M", Type: "X"})
			if got != tt.want {
				t.Fatalf("Dispatch = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDispatchPushRequiresRecord(t *testing.T) {
	t.Parallel()
	st := &fakeNotifStore{err: errors.New("insert failed")}
	push := &fakePusher{}
	d := New(st, push, nil, logx.Nop())

	res := d.Dispatch(context.Background(), allOn(), Event{Title: "T", Message: "M", Type: "X"})
	if res.NotificationCreated {
		t.Fatal("insert failed; record must not be reported created")
	}
	if res.PushAttempted || push.calls != 0 {
		t.Fatal("push must not run without a created record")
	}
}

func TestDispatchNilProviders(t *testing.T) {
	t.Parallel()
	d := New(&fakeNotifStore{}, nil, nil, logx.Nop())
	res := d.Dispatch(context.Background(), allOn(), Event{Title: "T", Message: "M", Type: "X"})
	if !res.NotificationCreated || res.PushAttempted || res.EmailAttempted {
		t.Fatalf("unexpected result with nil providers: %+v", res)
	}
}

func TestEmailBody(t *testing.T) {
	t.Parallel()
	body := emailBody(Recipient{Name: "Ada"}, Event{Message: "Task due", Link: "https://x/t/1", Critical: true})
	for _, want := range []string{"CRITICAL", "Ada", "Task due", `href="https://x/t/1"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("email body missing %q:\n%s", want, body)
		}
	}
	plain := emailBody(Recipient{Name: "Ada"}, Event{Message: "Hi"})
	if strings.Contains(plain, "CRITICAL") || strings.Contains(plain, "href") {
		t.Fatalf("non-critical linkless body has extras:\n%s", plain)
	}
}
