package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if s.ControlAddr != defaultControlAddr {
		t.Fatalf("expected control addr %s, got %s", defaultControlAddr, s.ControlAddr)
	}
	if s.LockPath() != filepath.Join(os.TempDir(), "AutoHomework.lock") {
		t.Fatalf("unexpected lock path %s", s.LockPath())
	}
	if s.TickInterval() != time.Second || s.JoinTimeout() != 2*time.Second {
		t.Fatalf("unexpected loop timings %s / %s", s.TickInterval(), s.JoinTimeout())
	}
	if s.UIURL != "http://127.0.0.1:58701/" {
		t.Fatalf("unexpected ui url %s", s.UIURL)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.AppName != defaultAppName {
		t.Fatalf("expected default app name, got %s", s.AppName)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.toml")
	content := `
app_name = "HomeworkTest"
control_addr = "127.0.0.1:60000"
lock_dir = "` + filepath.ToSlash(dir) + `"
data_dir = "` + filepath.ToSlash(dir) + `"
log_level = "DEBUG"
log_format = "bogus"
tick_interval_ms = 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.AppName != "HomeworkTest" || s.ControlAddr != "127.0.0.1:60000" {
		t.Fatalf("overrides not applied: %+v", s)
	}
	if s.LogLevel != "debug" {
		t.Fatalf("expected lower-cased level, got %s", s.LogLevel)
	}
	if s.LogFormat != defaultLogFormat {
		t.Fatalf("expected unknown format to normalize to %s, got %s", defaultLogFormat, s.LogFormat)
	}
	if s.TickInterval() != 50*time.Millisecond {
		t.Fatalf("expected 50ms tick, got %s", s.TickInterval())
	}
	if s.UIURL != "http://127.0.0.1:60000/" {
		t.Fatalf("ui url should follow control addr, got %s", s.UIURL)
	}
}

func TestLoadRejectsPathInAppName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	if err := os.WriteFile(path, []byte(`app_name = "../evil"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for app_name with path separator")
	}
}
