package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/game/config"
	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/game/service"
)

func TestManagerWithPersistence(t *testing.T) {
	levelDir := t.TempDir()
	data, _ := json.Marshal(createTestLevel())
	if err := os.WriteFile(filepath.Join(levelDir, "level_1.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	levels, err := config.NewManager(levelDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create level catalogue: %v", err)
	}

	persistence, err := NewFilePersistence(t.TempDir(), levels, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}

	manager := NewManagerWithPersistence(persistence, zerolog.Nop())
	levelID, level := levels.GetDefault()

	t.Run("Create Session Auto-Saves", func(t *testing.T) {
		sess, err := manager.Create("auto1", levelID, level)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if !persistence.Exists(sess.ID) {
			t.Error("Session should be auto-saved on creation")
		}
	})

	t.Run("Get Session Restores from Persistence", func(t *testing.T) {
		sess, _ := manager.Get("auto1")
		sess.Engine.Start()
		sess.Engine.Tap(engine.Position{X: 2, Y: 0})
		if err := manager.Save("auto1"); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		manager2 := NewManagerWithPersistence(persistence, zerolog.Nop())
		restored := 0
		manager2.OnReady(func(*service.Session) { restored++ })

		loaded, err := manager2.Get("auto1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if loaded.Engine.Phase() != engine.PhasePlaying {
			t.Errorf("Expected playing, got %s", loaded.Engine.Phase())
		}
		if loaded.Engine.Snapshot().CharactersLeft != 5 {
			t.Errorf("Expected 5 characters left, got %d", loaded.Engine.Snapshot().CharactersLeft)
		}
		if restored != 1 {
			t.Errorf("Expected one ready hook, got %d", restored)
		}
	})

	t.Run("LoadPersistedSessions", func(t *testing.T) {
		manager.Create("auto2", levelID, level)

		manager3 := NewManagerWithPersistence(persistence, zerolog.Nop())
		if err := manager3.LoadPersistedSessions(); err != nil {
			t.Fatalf("LoadPersistedSessions failed: %v", err)
		}
		if manager3.Count() != 2 {
			t.Errorf("Expected 2 sessions, got %d", manager3.Count())
		}
	})

	t.Run("PruneMissing", func(t *testing.T) {
		if removed := manager.PruneMissing(time.Hour); removed != 0 {
			t.Errorf("Sessions inside the grace period should stay, removed %d", removed)
		}
		if removed := manager.PruneMissing(0); removed != 0 {
			t.Errorf("Sessions with files should stay, removed %d", removed)
		}
	})

	t.Run("Delete removes persisted copy", func(t *testing.T) {
		if err := manager.Delete("auto2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if persistence.Exists("auto2") {
			t.Error("Persisted session should be deleted")
		}
	})

	t.Run("Expired sessions are restored on demand", func(t *testing.T) {
		manager.CleanupExpiredSessions(-time.Second)
		if manager.Count() != 0 {
			t.Fatalf("Expected empty memory, got %d", manager.Count())
		}
		if _, err := manager.Get("auto1"); err != nil {
			t.Errorf("Expected restore from storage, got %v", err)
		}
	})

	t.Run("PruneMissing drops sessions deleted from disk", func(t *testing.T) {
		if err := persistence.Delete("auto1"); err != nil {
			t.Fatal(err)
		}
		if removed := manager.PruneMissing(0); removed != 1 {
			t.Errorf("Expected one pruned session, got %d", removed)
		}
		if _, err := manager.Get("auto1"); err != ErrSessionNotFound {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}
