package mail

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	msg := string(buildMessage("TaskPilot <noreply@example.com>", "ada@example.com", "Overdue: Ship it", "<p>hi</p>"))

	for _, want := range []string{
		"From: TaskPilot <noreply@example.com>\r\n",
		"To: ada@example.com\r\n",
		"Subject: Overdue: Ship it\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatal("no header/body separator")
	}
	if body != "<p>hi</p>" {
		t.Fatalf("body = %q", body)
	}
	if strings.Contains(head, "<p>") {
		t.Fatal("body leaked into headers")
	}
}

func TestSanitizeHeader(t *testing.T) {
	t.Parallel()
	got := sanitizeHeader("subject\r\nBcc: evil@example.com")
	if strings.ContainsAny(got, "\r\n") {
		t.Fatalf("header still contains CR/LF: %q", got)
	}
}

func TestNewDefaultsPort(t *testing.T) {
	t.Parallel()
	m := New(Config{Host: "smtp.example.com", From: "x@example.com"})
	if m.addr != "smtp.example.com:587" {
		t.Fatalf("addr = %s, want default port 587", m.addr)
	}
	if m.auth != nil {
		t.Fatal("auth should be nil without a username")
	}
}
