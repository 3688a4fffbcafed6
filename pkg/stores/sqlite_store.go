package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openfacade/openfacade/pkg/resolver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists resolution history in a local SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	emitter *resolver.Emitter
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a store instance. Init must be called before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path:    cfg.Path,
		emitter: resolver.NewEmitter(),
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded source.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveResolution stores a resolved plan. The plan is redacted before it
// touches disk; policyAllowed may be nil when policies did not run.
func (s *SQLiteStore) SaveResolution(ctx context.Context, plan *resolver.ResolvedPlan, policyAllowed *bool) error {
	doc, err := s.emitter.RedactedDocument(plan)
	if err != nil {
		return fmt.Errorf("failed to redact plan: %w", err)
	}
	planJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize plan: %w", err)
	}
	intentJSON, err := json.Marshal(plan.Intent)
	if err != nil {
		return fmt.Errorf("failed to serialize intent: %w", err)
	}

	query := `
		INSERT INTO resolutions (id, app_name, intent, plan, descriptor_count, secret_generated, policy_allowed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		plan.ID,
		plan.Intent.AppName,
		string(intentJSON),
		string(planJSON),
		plan.Summary.TotalDescriptors,
		plan.Summary.SecretGenerated,
		policyAllowed,
		plan.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to save resolution: %w", err)
	}
	return nil
}

// GetResolution retrieves a resolution by plan ID.
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*Resolution, error) {
	query := `
		SELECT id, app_name, intent, plan, descriptor_count, secret_generated, policy_allowed, created_at
		FROM resolutions
		WHERE id = ?
	`

	r := &Resolution{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.AppName,
		&r.Intent,
		&r.Plan,
		&r.DescriptorCount,
		&r.SecretGenerated,
		&r.PolicyAllowed,
		&r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resolution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}
	return r, nil
}

// ListResolutions lists resolutions newest first, optionally filtered by app
// name.
func (s *SQLiteStore) ListResolutions(ctx context.Context, appName *string, limit, offset int) ([]*Resolution, error) {
	query := `
		SELECT id, app_name, intent, plan, descriptor_count, secret_generated, policy_allowed, created_at
		FROM resolutions
		WHERE (? IS NULL OR app_name = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, appName, appName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	resolutions := []*Resolution{}
	for rows.Next() {
		r := &Resolution{}
		err := rows.Scan(
			&r.ID,
			&r.AppName,
			&r.Intent,
			&r.Plan,
			&r.DescriptorCount,
			&r.SecretGenerated,
			&r.PolicyAllowed,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		resolutions = append(resolutions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}
	return resolutions, nil
}

// DeleteResolution deletes a resolution and, via cascade, its events.
func (s *SQLiteStore) DeleteResolution(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resolutions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resolution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resolution not found: %s", id)
	}
	return nil
}

// AppendEvent appends an event to a resolution's log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (resolution_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.ResolutionID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}
	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters, newest first.
func (s *SQLiteStore) GetEvents(ctx context.Context, resolutionID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, resolution_id, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR resolution_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, resolutionID, resolutionID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.ResolutionID,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
