package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for scheduled-publication persistence.
type Repository interface {
	// Create inserts a new record.
	Create(ctx context.Context, sp *ScheduledPublication) error

	// GetByID retrieves a record. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*ScheduledPublication, error)

	// Update persists every mutable field of the record.
	Update(ctx context.Context, sp *ScheduledPublication) error

	// List retrieves all records, newest schedule first.
	List(ctx context.Context) ([]ScheduledPublication, error)

	// ListByDevice retrieves one device's records, newest schedule first.
	ListByDevice(ctx context.Context, deviceID string) ([]ScheduledPublication, error)

	// ListDue retrieves every PENDING record scheduled at or before now,
	// oldest first.
	ListDue(ctx context.Context, now time.Time) ([]ScheduledPublication, error)
}

const spColumns = `id, device_id, topic, payload, qos, retain, scheduled_at, status, published_at, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed scheduler repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new record.
func (r *SQLiteRepository) Create(ctx context.Context, sp *ScheduledPublication) error {
	now := time.Now().UTC()
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = now
	}
	sp.UpdatedAt = now

	query := `
		INSERT INTO scheduled_publications
			(id, device_id, topic, payload, qos, retain, scheduled_at, status, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		sp.ID,
		sp.DeviceID,
		sp.Topic,
		sp.Payload,
		sp.QoS,
		boolToInt(sp.Retain),
		sp.ScheduledAt.UTC().Format(time.RFC3339),
		string(sp.Status),
		nullableTime(sp.PublishedAt),
		sp.CreatedAt.Format(time.RFC3339),
		sp.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting scheduled publication: %w", err)
	}
	return nil
}

// GetByID retrieves a record.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*ScheduledPublication, error) {
	query := `SELECT ` + spColumns + ` FROM scheduled_publications WHERE id = ?`

	sp, err := scanScheduledPublication(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying scheduled publication: %w", err)
	}
	return sp, nil
}

// Update persists every mutable field of the record.
func (r *SQLiteRepository) Update(ctx context.Context, sp *ScheduledPublication) error {
	sp.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE scheduled_publications
		SET topic = ?, payload = ?, qos = ?, retain = ?, scheduled_at = ?,
		    status = ?, published_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		sp.Topic,
		sp.Payload,
		sp.QoS,
		boolToInt(sp.Retain),
		sp.ScheduledAt.UTC().Format(time.RFC3339),
		string(sp.Status),
		nullableTime(sp.PublishedAt),
		sp.UpdatedAt.Format(time.RFC3339),
		sp.ID,
	)
	if err != nil {
		return fmt.Errorf("updating scheduled publication: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List retrieves all records, newest schedule first.
func (r *SQLiteRepository) List(ctx context.Context) ([]ScheduledPublication, error) {
	query := `SELECT ` + spColumns + ` FROM scheduled_publications ORDER BY scheduled_at DESC`
	return r.queryMany(ctx, query)
}

// ListByDevice retrieves one device's records, newest schedule first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]ScheduledPublication, error) {
	query := `SELECT ` + spColumns + ` FROM scheduled_publications WHERE device_id = ? ORDER BY scheduled_at DESC`
	return r.queryMany(ctx, query, deviceID)
}

// ListDue retrieves due PENDING records, oldest first.
func (r *SQLiteRepository) ListDue(ctx context.Context, now time.Time) ([]ScheduledPublication, error) {
	query := `
		SELECT ` + spColumns + `
		FROM scheduled_publications
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at`

	return r.queryMany(ctx, query, string(StatusPending), now.UTC().Format(time.RFC3339))
}

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]ScheduledPublication, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled publications: %w", err)
	}
	defer rows.Close()

	var records []ScheduledPublication
	for rows.Next() {
		sp, err := scanScheduledPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scheduled publication: %w", err)
		}
		records = append(records, *sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled publications: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledPublication(scanner rowScanner) (*ScheduledPublication, error) {
	var sp ScheduledPublication
	var retain int
	var status string
	var scheduledAt, createdAt, updatedAt string
	var publishedAt sql.NullString

	err := scanner.Scan(
		&sp.ID,
		&sp.DeviceID,
		&sp.Topic,
		&sp.Payload,
		&sp.QoS,
		&retain,
		&scheduledAt,
		&status,
		&publishedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sp.Retain = retain != 0
	sp.Status = Status(status)

	sp.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAt)
	if err != nil {
		return nil, fmt.Errorf("parsing scheduled_at: %w", err)
	}
	sp.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	sp.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if publishedAt.Valid {
		ts, err := time.Parse(time.RFC3339, publishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing published_at: %w", err)
		}
		sp.PublishedAt = &ts
	}

	return &sp, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
