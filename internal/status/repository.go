package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists subsystem status rows.
type Repository interface {
	Save(ctx context.Context, s *SubsystemStatus) error
	Get(ctx context.Context, subsystem string) (*SubsystemStatus, error)
	List(ctx context.Context) ([]SubsystemStatus, error)
}

const statusColumns = `subsystem, state, connect_count, reconnect_count,
			last_connected_at, last_closed_at, last_error, last_error_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or replaces the row for s.Subsystem.
func (r *SQLiteRepository) Save(ctx context.Context, s *SubsystemStatus) error {
	query := `INSERT INTO subsystem_status (` + statusColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subsystem) DO UPDATE SET
			state = excluded.state,
			connect_count = excluded.connect_count,
			reconnect_count = excluded.reconnect_count,
			last_connected_at = excluded.last_connected_at,
			last_closed_at = excluded.last_closed_at,
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		s.Subsystem,
		string(s.State),
		s.ConnectCount,
		s.ReconnectCount,
		formatTime(s.LastConnectedAt),
		formatTime(s.LastClosedAt),
		nullString(s.LastError),
		formatTime(s.LastErrorAt),
		s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving status for %s: %w", s.Subsystem, err)
	}
	return nil
}

// Get retrieves the row for subsystem.
func (r *SQLiteRepository) Get(ctx context.Context, subsystem string) (*SubsystemStatus, error) {
	query := `SELECT ` + statusColumns + ` FROM subsystem_status WHERE subsystem = ?`

	s, err := scanStatus(r.db.QueryRowContext(ctx, query, subsystem))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying status for %s: %w", subsystem, err)
	}
	return s, nil
}

// List retrieves every row ordered by subsystem.
func (r *SQLiteRepository) List(ctx context.Context) ([]SubsystemStatus, error) {
	query := `SELECT ` + statusColumns + ` FROM subsystem_status ORDER BY subsystem`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing status: %w", err)
	}
	defer rows.Close()

	var out []SubsystemStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*SubsystemStatus, error) {
	var (
		s                                  SubsystemStatus
		state                              string
		connectedAt, closedAt, lastErrorAt sql.NullString
		lastError                          sql.NullString
		updatedAt                          string
	)

	if err := row.Scan(&s.Subsystem, &state, &s.ConnectCount, &s.ReconnectCount,
		&connectedAt, &closedAt, &lastError, &lastErrorAt, &updatedAt); err != nil {
		return nil, err
	}

	s.State = State(state)
	s.LastError = lastError.String
	s.LastConnectedAt = parseTime(connectedAt)
	s.LastClosedAt = parseTime(closedAt)
	s.LastErrorAt = parseTime(lastErrorAt)
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		s.UpdatedAt = t
	}
	return &s, nil
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
