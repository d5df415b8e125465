package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kiwivoice/kiwi/internal/config"
)

func writeConfig(t *testing.T, path, yaml string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	// Force a distinct mtime so the watcher's quick check cannot miss fast
	// consecutive writes.
	now := time.Now()
	if err := os.Chtimes(path, now, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kiwi.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("initial config = %+v", w.Current())
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kiwi.yaml")
	writeConfig(t, path, "server:\n  log_level: loud\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("invalid initial config must fail")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kiwi.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	onChange := func(old, new *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		gotOld, gotNew = old, new
	}

	w, err := config.NewWatcher(path, onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: debug\n")

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := gotNew != nil
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("change never reported")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld.Server.LogLevel != config.LogInfo || gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("onChange(%+v, %+v)", gotOld.Server, gotNew.Server)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() = %+v", w.Current().Server)
	}
}

func TestWatcherKeepsLastGoodConfigOnInvalidRewrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kiwi.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	changes := 0
	var mu sync.Mutex
	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		mu.Lock()
		changes++
		mu.Unlock()
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: loud\n")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if changes != 0 {
		t.Errorf("invalid rewrite triggered %d change callbacks", changes)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() = %+v", w.Current().Server)
	}
}
