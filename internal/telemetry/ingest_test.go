package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE telemetry_keys (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(device_id, name)
		) STRICT;
		CREATE TABLE telemetry_values (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			key_id TEXT,
			value TEXT NOT NULL,
			partition TEXT NOT NULL,
			observed_at TEXT NOT NULL
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing time %q: %v", s, err)
	}
	return ts
}

func keyByName(t *testing.T, keys []Key, name string) Key {
	t.Helper()
	for _, k := range keys {
		if k.Name == name {
			return k
		}
	}
	t.Fatalf("key %q not found in %+v", name, keys)
	return Key{}
}

func TestIngestor_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("flattens JSON object into typed keys", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteRepository(db)
		ing := NewIngestor(repo, nil, nil)

		err := ing.Ingest(ctx, "dev-1", "sensors/env", []byte(`{"a":{"b":1},"c":[1,2]}`))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		keys, err := repo.ListKeys(ctx, "dev-1")
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("ListKeys() returned %d keys, want 2", len(keys))
		}

		ab := keyByName(t, keys, "a.b")
		if ab.Type != TypeNumber {
			t.Errorf("a.b type = %q, want %q", ab.Type, TypeNumber)
		}
		c := keyByName(t, keys, "c")
		if c.Type != TypeArray {
			t.Errorf("c type = %q, want %q", c.Type, TypeArray)
		}

		for _, k := range keys {
			var count int
			row := db.QueryRow("SELECT COUNT(*) FROM telemetry_values WHERE key_id = ?", k.ID)
			if err := row.Scan(&count); err != nil {
				t.Fatalf("counting values for %s: %v", k.Name, err)
			}
			if count != 1 {
				t.Errorf("key %s has %d value rows, want 1", k.Name, count)
			}
		}
	})

	t.Run("treats non-JSON payload as topic-named string", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteRepository(db)
		ing := NewIngestor(repo, nil, nil)

		err := ing.Ingest(ctx, "dev-1", "x/y", []byte("hello"))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		keys, err := repo.ListKeys(ctx, "dev-1")
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		if len(keys) != 1 {
			t.Fatalf("ListKeys() returned %d keys, want 1", len(keys))
		}
		if keys[0].Name != "x.y" || keys[0].Type != TypeString {
			t.Errorf("key = %s/%s, want x.y/string", keys[0].Name, keys[0].Type)
		}

		values, err := repo.ValuesInPartition(ctx, "dev-1", PartitionFor(time.Now()))
		if err != nil {
			t.Fatalf("ValuesInPartition() error = %v", err)
		}
		if len(values) != 1 || values[0].Value != "hello" {
			t.Errorf("values = %+v, want one row with value hello", values)
		}
	})

	t.Run("null field registers key without value row", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteRepository(db)
		ing := NewIngestor(repo, nil, nil)

		err := ing.Ingest(ctx, "dev-1", "sensors/env", []byte(`{"present":1,"absent":null}`))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		keys, err := repo.ListKeys(ctx, "dev-1")
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("ListKeys() returned %d keys, want 2", len(keys))
		}

		absent := keyByName(t, keys, "absent")
		var count int
		row := db.QueryRow("SELECT COUNT(*) FROM telemetry_values WHERE key_id = ?", absent.ID)
		if err := row.Scan(&count); err != nil {
			t.Fatalf("counting values: %v", err)
		}
		if count != 0 {
			t.Errorf("null key has %d value rows, want 0", count)
		}
	})

	t.Run("type follows most recent observation", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteRepository(db)
		ing := NewIngestor(repo, nil, nil)

		if err := ing.Ingest(ctx, "dev-1", "t", []byte(`{"level":5}`)); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if err := ing.Ingest(ctx, "dev-1", "t", []byte(`{"level":"high"}`)); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		keys, err := repo.ListKeys(ctx, "dev-1")
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		level := keyByName(t, keys, "level")
		if level.Type != TypeString {
			t.Errorf("type = %q after string observation, want %q", level.Type, TypeString)
		}

		// Historical rows keep both observations.
		values, err := repo.ValuesInPartition(ctx, "dev-1", PartitionFor(time.Now()))
		if err != nil {
			t.Fatalf("ValuesInPartition() error = %v", err)
		}
		if len(values) != 2 {
			t.Errorf("history has %d rows, want 2", len(values))
		}
	})

	t.Run("duplicate delivery appends duplicate rows", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteRepository(db)
		ing := NewIngestor(repo, nil, nil)

		payload := []byte(`{"temp":21.5}`)
		for i := 0; i < 2; i++ {
			if err := ing.Ingest(ctx, "dev-1", "t", payload); err != nil {
				t.Fatalf("Ingest() error = %v", err)
			}
		}

		keys, err := repo.ListKeys(ctx, "dev-1")
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		if len(keys) != 1 {
			t.Fatalf("ListKeys() returned %d keys, want 1", len(keys))
		}

		values, err := repo.ValuesInPartition(ctx, "dev-1", PartitionFor(time.Now()))
		if err != nil {
			t.Fatalf("ValuesInPartition() error = %v", err)
		}
		if len(values) != 2 {
			t.Errorf("history has %d rows, want 2", len(values))
		}
	})

	t.Run("surfaces store failure", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteRepository(db)
		ing := NewIngestor(repo, nil, nil)
		db.Close()

		err := ing.Ingest(ctx, "dev-1", "t", []byte(`{"temp":1}`))
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("Ingest() error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestSQLiteRepository_LatestValues(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ing := NewIngestor(repo, nil, nil)
	ctx := context.Background()

	if err := ing.Ingest(ctx, "dev-1", "t", []byte(`{"temp":1,"mode":"eco"}`)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := ing.Ingest(ctx, "dev-1", "t", []byte(`{"temp":2}`)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	values, err := repo.LatestValues(ctx, "dev-1")
	if err != nil {
		t.Fatalf("LatestValues() error = %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("LatestValues() returned %d rows, want 2 (one per key)", len(values))
	}

	keys, err := repo.ListKeys(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	tempID := keyByName(t, keys, "temp").ID

	for _, v := range values {
		if v.KeyID != nil && *v.KeyID == tempID && v.Value != "2" {
			t.Errorf("latest temp = %q, want %q", v.Value, "2")
		}
	}
}
