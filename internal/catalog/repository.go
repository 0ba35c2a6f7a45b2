package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for topic persistence operations.
type Repository interface {
	// FindOrCreate returns the topic record for path, creating one with
	// open permissions if no record exists yet.
	FindOrCreate(ctx context.Context, path string) (*Topic, error)

	// GetByID retrieves a topic by its identifier.
	// Returns ErrTopicNotFound if absent.
	GetByID(ctx context.Context, id string) (*Topic, error)

	// GetByPath retrieves a topic by its exact path.
	// Returns ErrTopicNotFound if absent.
	GetByPath(ctx context.Context, path string) (*Topic, error)

	// List retrieves all registered topics.
	List(ctx context.Context) ([]Topic, error)

	// SetPermissions updates the permission flags on an existing topic.
	SetPermissions(ctx context.Context, id string, isPublic, allowSubscribe bool) error
}

const topicColumns = `id, path, is_public, allow_subscribe, created_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed topic repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// FindOrCreate returns the topic record for path, creating it if absent.
//
// Creation races are resolved by the UNIQUE(path) constraint: a loser
// re-reads the winner's row instead of failing.
func (r *SQLiteRepository) FindOrCreate(ctx context.Context, path string) (*Topic, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidPath
	}

	topic, err := r.GetByPath(ctx, path)
	if err == nil {
		return topic, nil
	}
	if !errors.Is(err, ErrTopicNotFound) {
		return nil, err
	}

	created := &Topic{
		ID:             GenerateID(),
		Path:           path,
		IsPublic:       true,
		AllowSubscribe: true,
		CreatedAt:      time.Now().UTC(),
	}

	query := `
		INSERT INTO topics (id, path, is_public, allow_subscribe, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		created.ID,
		created.Path,
		boolToInt(created.IsPublic),
		boolToInt(created.AllowSubscribe),
		created.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return r.GetByPath(ctx, path)
		}
		return nil, fmt.Errorf("inserting topic: %w", err)
	}
	return created, nil
}

// GetByID retrieves a topic by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE id = ?`
	return scanTopicRow(r.db.QueryRowContext(ctx, query, id))
}

// GetByPath retrieves a topic by its exact path.
func (r *SQLiteRepository) GetByPath(ctx context.Context, path string) (*Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE path = ?`
	return scanTopicRow(r.db.QueryRowContext(ctx, query, path))
}

// List retrieves all registered topics ordered by path.
func (r *SQLiteRepository) List(ctx context.Context) ([]Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics ORDER BY path`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		topics = append(topics, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}
	return topics, nil
}

// SetPermissions updates the permission flags on an existing topic.
func (r *SQLiteRepository) SetPermissions(ctx context.Context, id string, isPublic, allowSubscribe bool) error {
	query := `UPDATE topics SET is_public = ?, allow_subscribe = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, boolToInt(isPublic), boolToInt(allowSubscribe), id)
	if err != nil {
		return fmt.Errorf("updating topic permissions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTopicNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopicRow(row *sql.Row) (*Topic, error) {
	t, err := scanTopic(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTopicNotFound
		}
		return nil, fmt.Errorf("querying topic: %w", err)
	}
	return t, nil
}

func scanTopic(scanner rowScanner) (*Topic, error) {
	var t Topic
	var isPublic, allowSubscribe int
	var createdAt string

	err := scanner.Scan(&t.ID, &t.Path, &isPublic, &allowSubscribe, &createdAt)
	if err != nil {
		return nil, err
	}

	t.IsPublic = isPublic != 0
	t.AllowSubscribe = allowSubscribe != 0

	t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
