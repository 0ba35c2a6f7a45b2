package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for telemetry persistence.
type Repository interface {
	// UpsertKey atomically creates or updates the key for
	// (deviceID, name) with the observed type, returning the stored row.
	UpsertKey(ctx context.Context, deviceID, name, typ string) (*Key, error)

	// InsertValue appends one immutable value row.
	InsertValue(ctx context.Context, value *Value) error

	// ListKeys retrieves all keys discovered for a device.
	ListKeys(ctx context.Context, deviceID string) ([]Key, error)

	// LatestValues retrieves the newest value row per key for a device.
	LatestValues(ctx context.Context, deviceID string) ([]Value, error)

	// ValuesInPartition retrieves a device's values within one calendar
	// month partition, oldest first.
	ValuesInPartition(ctx context.Context, deviceID, partition string) ([]Value, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed telemetry repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// UpsertKey atomically creates or updates a key by (device_id, name).
//
// Concurrent ingestion for the same key must not corrupt the registry;
// the single INSERT ... ON CONFLICT statement carries that burden.
func (r *SQLiteRepository) UpsertKey(ctx context.Context, deviceID, name, typ string) (*Key, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO telemetry_keys (id, device_id, name, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, name) DO UPDATE SET
			type = excluded.type,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, GenerateKeyID(), deviceID, name, typ, now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting telemetry key: %w", err)
	}

	return r.getKey(ctx, deviceID, name)
}

func (r *SQLiteRepository) getKey(ctx context.Context, deviceID, name string) (*Key, error) {
	query := `
		SELECT id, device_id, name, type, created_at, updated_at
		FROM telemetry_keys
		WHERE device_id = ? AND name = ?`

	k, err := scanKey(r.db.QueryRowContext(ctx, query, deviceID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("querying telemetry key: %w", err)
	}
	return k, nil
}

// InsertValue appends one immutable value row.
func (r *SQLiteRepository) InsertValue(ctx context.Context, value *Value) error {
	query := `
		INSERT INTO telemetry_values (device_id, key_id, value, partition, observed_at)
		VALUES (?, ?, ?, ?, ?)`

	var keyID sql.NullString
	if value.KeyID != nil {
		keyID = sql.NullString{String: *value.KeyID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		value.DeviceID,
		keyID,
		value.Value,
		value.Partition,
		value.ObservedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry value: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		value.ID = id
	}
	return nil
}

// ListKeys retrieves all keys discovered for a device ordered by name.
func (r *SQLiteRepository) ListKeys(ctx context.Context, deviceID string) ([]Key, error) {
	query := `
		SELECT id, device_id, name, type, created_at, updated_at
		FROM telemetry_keys
		WHERE device_id = ?
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning telemetry key: %w", err)
		}
		keys = append(keys, *k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry keys: %w", err)
	}
	return keys, nil
}

// LatestValues retrieves the newest value row per key for a device.
// Rows with no key association are excluded.
func (r *SQLiteRepository) LatestValues(ctx context.Context, deviceID string) ([]Value, error) {
	query := `
		SELECT v.id, v.device_id, v.key_id, v.value, v.partition, v.observed_at
		FROM telemetry_values v
		WHERE v.device_id = ?
		  AND v.key_id IS NOT NULL
		  AND v.id = (
			SELECT MAX(v2.id) FROM telemetry_values v2
			WHERE v2.device_id = v.device_id AND v2.key_id = v.key_id
		  )
		ORDER BY v.key_id`

	return r.queryValues(ctx, query, deviceID)
}

// ValuesInPartition retrieves one month of a device's history, oldest first.
func (r *SQLiteRepository) ValuesInPartition(ctx context.Context, deviceID, partition string) ([]Value, error) {
	query := `
		SELECT id, device_id, key_id, value, partition, observed_at
		FROM telemetry_values
		WHERE device_id = ? AND partition = ?
		ORDER BY id`

	return r.queryValues(ctx, query, deviceID, partition)
}

func (r *SQLiteRepository) queryValues(ctx context.Context, query string, args ...any) ([]Value, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry values: %w", err)
	}
	defer rows.Close()

	var values []Value
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning telemetry value: %w", err)
		}
		values = append(values, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry values: %w", err)
	}
	return values, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(scanner rowScanner) (*Key, error) {
	var k Key
	var createdAt, updatedAt string

	err := scanner.Scan(&k.ID, &k.DeviceID, &k.Name, &k.Type, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	k.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	k.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &k, nil
}

func scanValue(scanner rowScanner) (*Value, error) {
	var v Value
	var keyID sql.NullString
	var observedAt string

	err := scanner.Scan(&v.ID, &v.DeviceID, &keyID, &v.Value, &v.Partition, &observedAt)
	if err != nil {
		return nil, err
	}

	if keyID.Valid {
		v.KeyID = &keyID.String
	}

	v.ObservedAt, err = time.Parse(time.RFC3339, observedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing observed_at: %w", err)
	}
	return &v, nil
}
