package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lexvoss/internal/config"
)

func writeConfig(t *testing.T, path, sessionSize string) {
	t.Helper()
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/lexvoss"
training:
  session_size: ` + sessionSize + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestWatcher_InitialLoad checks the initial config is available immediately.
func TestWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeConfig(t, path, "10")

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Training.SessionSize; got != 10 {
		t.Errorf("session_size = %d", got)
	}
}

// TestWatcher_DetectsChange checks that an edited file triggers the callback.
func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeConfig(t, path, "10")

	var mu sync.Mutex
	var gotNew *config.Config
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		gotNew = new
		mu.Unlock()
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "15")
	now := time.Now()
	os.Chtimes(path, now, now)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := gotNew != nil
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNew == nil {
		t.Fatal("onChange never fired")
	}
	if gotNew.Training.SessionSize != 15 {
		t.Errorf("new session_size = %d", gotNew.Training.SessionSize)
	}
	if w.Current().Training.SessionSize != 15 {
		t.Errorf("Current not updated")
	}
}

// TestWatcher_KeepsOldConfigOnInvalidEdit checks that broken edits are ignored.
func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeConfig(t, path, "10")

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("nonsense: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	os.Chtimes(path, now, now)

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Training.SessionSize; got != 10 {
		t.Errorf("session_size = %d, want the last valid config", got)
	}
}
