package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestJSONConfigStore(t *testing.T) {
	t.Run("defaults when no file exists", func(t *testing.T) {
		store, err := NewJSONConfigStore(t.TempDir())
		if err != nil {
			t.Fatal(fmt.Errorf("could not create config store: %w", err))
		}
		requireEqual("config", DefaultConfig(), store.Get(), t)
	})

	t.Run("save persists and reloads", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewJSONConfigStore(dir)
		if err != nil {
			t.Fatal(fmt.Errorf("could not create config store: %w", err))
		}
		token := "ABCDEF"
		enabled := true
		if _, err = store.Save(ConfigPatch{AccessToken: &token, AutoSendEnabled: &enabled}); err != nil {
			t.Fatal(fmt.Errorf("error saving config: %w", err))
		}

		reloaded, err := NewJSONConfigStore(dir)
		if err != nil {
			t.Fatal(fmt.Errorf("could not reload config store: %w", err))
		}
		requireEqual("access_token", "ABCDEF", reloaded.Get().AccessToken, t)
		requireEqual("auto_send_enabled", true, reloaded.Get().AutoSendEnabled, t)
		requireEqual("friday_send_time", "15:00", reloaded.Get().FridaySendTime, t)
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(`{"access_token":"X"}`), 0o644); err != nil {
			t.Fatal(err)
		}
		store, err := NewJSONConfigStore(dir)
		if err != nil {
			t.Fatal(fmt.Errorf("could not create config store: %w", err))
		}
		requireEqual("access_token", "X", store.Get().AccessToken, t)
		requireEqual("auto_start_ui", true, store.Get().AutoStartUI, t)
	})

	t.Run("legacy config is migrated", func(t *testing.T) {
		legacyDir := t.TempDir()
		legacy := DefaultConfig()
		legacy.PPTFilePath = "/tmp/homework.pptx"
		b, _ := json.Marshal(legacy)
		if err := os.WriteFile(filepath.Join(legacyDir, configFileName), b, 0o644); err != nil {
			t.Fatal(err)
		}

		dir := t.TempDir()
		store, err := NewJSONConfigStore(dir, legacyDir)
		if err != nil {
			t.Fatal(fmt.Errorf("could not create config store: %w", err))
		}
		requireEqual("ppt_file_path", "/tmp/homework.pptx", store.Get().PPTFilePath, t)
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err != nil {
			t.Fatalf("expected migrated config file: %v", err)
		}
	})

	t.Run("failed write keeps previous document", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("directory permissions are not enforced")
		}
		dir := t.TempDir()
		store, err := NewJSONConfigStore(dir)
		if err != nil {
			t.Fatal(fmt.Errorf("could not create config store: %w", err))
		}
		if err := os.Chmod(dir, 0o500); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(dir, 0o755) })

		token := "NEW"
		if _, err := store.Save(ConfigPatch{AccessToken: &token}); err == nil {
			t.Fatal("expected save to fail on read-only directory")
		}
		requireEqual("access_token", "", store.Get().AccessToken, t)
	})
}
