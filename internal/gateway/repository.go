package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SubscriptionRepository persists device subscription patterns.
type SubscriptionRepository interface {
	// Create inserts a subscription.
	// Returns ErrSubscriptionExists when (device, pattern) is taken.
	Create(ctx context.Context, sub *Subscription) error

	// Delete removes a subscription by (device, pattern).
	// Reports whether a row existed.
	Delete(ctx context.Context, deviceID, pattern string) (bool, error)

	// ListByDevice retrieves one device's subscriptions.
	ListByDevice(ctx context.Context, deviceID string) ([]Subscription, error)

	// ListAll retrieves every persisted subscription, grouped by device.
	ListAll(ctx context.Context) ([]Subscription, error)
}

// PublicationRepository persists immediate-publish history.
type PublicationRepository interface {
	// Create records one delivered publication.
	Create(ctx context.Context, pub *Publication) error

	// ListByDevice retrieves one device's publication history,
	// newest first.
	ListByDevice(ctx context.Context, deviceID string) ([]Publication, error)
}

// SQLiteSubscriptionRepository implements SubscriptionRepository using SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite-backed
// subscription repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

// Create inserts a subscription.
func (r *SQLiteSubscriptionRepository) Create(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = generateID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO subscriptions (id, device_id, pattern, qos, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.DeviceID,
		sub.Pattern,
		sub.QoS,
		sub.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription by (device, pattern).
func (r *SQLiteSubscriptionRepository) Delete(ctx context.Context, deviceID, pattern string) (bool, error) {
	query := `DELETE FROM subscriptions WHERE device_id = ? AND pattern = ?`

	result, err := r.db.ExecContext(ctx, query, deviceID, pattern)
	if err != nil {
		return false, fmt.Errorf("deleting subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListByDevice retrieves one device's subscriptions ordered by pattern.
func (r *SQLiteSubscriptionRepository) ListByDevice(ctx context.Context, deviceID string) ([]Subscription, error) {
	query := `
		SELECT id, device_id, pattern, qos, created_at
		FROM subscriptions
		WHERE device_id = ?
		ORDER BY pattern`

	return r.query(ctx, query, deviceID)
}

// ListAll retrieves every persisted subscription grouped by device.
func (r *SQLiteSubscriptionRepository) ListAll(ctx context.Context) ([]Subscription, error) {
	query := `
		SELECT id, device_id, pattern, qos, created_at
		FROM subscriptions
		ORDER BY device_id, pattern`

	return r.query(ctx, query)
}

func (r *SQLiteSubscriptionRepository) query(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		var createdAt string
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Pattern, &s.QoS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		s.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// SQLitePublicationRepository implements PublicationRepository using SQLite.
type SQLitePublicationRepository struct {
	db *sql.DB
}

// NewSQLitePublicationRepository creates a new SQLite-backed
// publication repository.
func NewSQLitePublicationRepository(db *sql.DB) *SQLitePublicationRepository {
	return &SQLitePublicationRepository{db: db}
}

// Create records one delivered publication.
func (r *SQLitePublicationRepository) Create(ctx context.Context, pub *Publication) error {
	if pub.ID == "" {
		pub.ID = generateID()
	}
	if pub.PublishedAt.IsZero() {
		pub.PublishedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO publications (id, device_id, topic, payload, qos, retain, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	retain := 0
	if pub.Retain {
		retain = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		pub.ID,
		pub.DeviceID,
		pub.Topic,
		pub.Payload,
		pub.QoS,
		retain,
		pub.PublishedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting publication: %w", err)
	}
	return nil
}

// ListByDevice retrieves one device's publication history, newest first.
func (r *SQLitePublicationRepository) ListByDevice(ctx context.Context, deviceID string) ([]Publication, error) {
	query := `
		SELECT id, device_id, topic, payload, qos, retain, published_at
		FROM publications
		WHERE device_id = ?
		ORDER BY published_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying publications: %w", err)
	}
	defer rows.Close()

	var pubs []Publication
	for rows.Next() {
		var p Publication
		var retain int
		var publishedAt string
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.Topic, &p.Payload, &p.QoS, &retain, &publishedAt); err != nil {
			return nil, fmt.Errorf("scanning publication: %w", err)
		}
		p.Retain = retain != 0
		p.PublishedAt, err = time.Parse(time.RFC3339, publishedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing published_at: %w", err)
		}
		pubs = append(pubs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating publications: %w", err)
	}
	return pubs, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
