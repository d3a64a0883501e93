package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "reopen.db")
	ctx := context.Background()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.CreateGroup(ctx, storagetest.NewGroup("g1", "ABC123")); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	store.Close()

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGroup after reopen failed: %v", err)
	}
	if len(got.Members) != 2 {
		t.Errorf("expected 2 members after reopen, got %d", len(got.Members))
	}
}

func TestSQLiteStore_UpgradesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	ctx := context.Background()

	old, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	_, err = old.Exec(`CREATE TABLE groups (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		preferences TEXT,
		leader_token_hash TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		t.Fatalf("Failed to create old schema: %v", err)
	}
	_, err = old.Exec(`INSERT INTO groups (id, code, name, status, leader_token_hash, created_at)
		VALUES ('g0', 'OLD000', 'Before', 'waiting', 'hash', 0)`)
	if err != nil {
		t.Fatalf("Failed to insert old group: %v", err)
	}
	old.Close()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to open old database: %v", err)
	}
	defer store.Close()

	got, err := store.GetGroup(ctx, "g0")
	if err != nil {
		t.Fatalf("GetGroup on upgraded database failed: %v", err)
	}
	if got.LeaderMemberID != "" {
		t.Errorf("expected empty leader member, got %q", got.LeaderMemberID)
	}

	group := storagetest.NewGroup("g1", "ABC123")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup on upgraded database failed: %v", err)
	}
	if got, _ := store.GetGroup(ctx, "g1"); got == nil || got.LeaderMemberID != group.LeaderMemberID {
		t.Errorf("leader member not stored after upgrade: %+v", got)
	}
}
