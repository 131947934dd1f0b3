package database

import (
	"path/filepath"
	"testing"
)

func TestOpenMigratedCreatesTables(t *testing.T) {
	db, err := OpenMigrated(Config{Path: filepath.Join(t.TempDir(), "nested", "data.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"users", "profile_docs", "anime_docs", "doc_seq"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	// applying twice must be harmless
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var seq int
	if err := db.QueryRow(`SELECT value FROM doc_seq WHERE id = 1`).Scan(&seq); err != nil || seq != 0 {
		t.Fatalf("unexpected seq %d err %v", seq, err)
	}
}
