// Package mail is the best-effort email collaborator. Errors bubble up to
// the dispatcher, which logs and swallows them; nothing here is fatal to a
// job run.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg  Config
	addr string
	auth smtp.Auth
}

func New(cfg Config) *Mailer {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	m := &Mailer{cfg: cfg, addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m
}

// Send delivers one HTML mail. smtp.SendMail has no context hook, so the
// call runs in a goroutine and the caller's deadline is honored by
// abandoning it; the dispatcher already caps this at its per-call timeout.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	msg := buildMessage(m.cfg.From, to, subject, html)

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(m.addr, m.auth, m.cfg.From, []string{to}, msg)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so subjects can never inject headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
