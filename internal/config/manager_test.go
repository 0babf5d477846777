package config

import (
	"os"
	"testing"
	"time"

	"taskpilot/pkg/logx"
)

func TestManagerReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "database:\n  dsn: one\n")
	m := NewManager(path, logx.Nop())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "one" {
		t.Fatalf("dsn = %s", cfg.Database.DSN)
	}

	sub := m.Subscribe(1)

	// Unchanged content publishes nothing.
	m.reload()
	select {
	case <-sub:
		t.Fatal("unchanged file must not republish")
	case <-time.After(50 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("database:\n  dsn: two\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()
	select {
	case got := <-sub:
		if got.Database.DSN != "two" {
			t.Fatalf("published dsn = %s", got.Database.DSN)
		}
	case <-time.After(time.Second):
		t.Fatal("reload never published")
	}
	if m.Get().Database.DSN != "two" {
		t.Fatal("Get not updated after reload")
	}
}

func TestManagerRejectsBadReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "database:\n  dsn: one\n")
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("nonsense: [\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()
	// Previous config stays committed.
	if m.Get().Database.DSN != "one" {
		t.Fatal("bad reload replaced the committed config")
	}
}
