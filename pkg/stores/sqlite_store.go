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
	"github.com/google/uuid"

	"github.com/openfroyo/bmi/pkg/bmi"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the CheckpointStore interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens its own database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// OpenSQLiteStore creates, initializes and migrates a store at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init initializes the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
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

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// SaveCheckpoint stores a checkpoint and its variable snapshots in a single
// transaction. An empty ID is replaced with a new UUID.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.Component == "" {
		return fmt.Errorf("checkpoint component is required")
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	attrs := cp.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (id, component, model_version, start_time, end_time, model_time,
			time_step, time_units, attributes, kernel_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cp.ID,
		cp.Component,
		cp.ModelVersion,
		cp.StartTime,
		cp.EndTime,
		cp.CurrentTime,
		cp.TimeStep,
		cp.TimeUnits,
		string(attrJSON),
		cp.KernelState,
		cp.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	for _, v := range cp.Variables {
		if v.Values == nil {
			return fmt.Errorf("variable %q has no values", v.Name)
		}
		shape, err := json.Marshal(v.Shape)
		if err != nil {
			return fmt.Errorf("failed to encode shape of %q: %w", v.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkpoint_variables (checkpoint_id, name, element_type, shape, data)
			VALUES (?, ?, ?, ?, ?)
		`, cp.ID, v.Name, string(v.Values.ElementType()), string(shape), EncodeValues(v.Values))
		if err != nil {
			return fmt.Errorf("failed to store variable %q: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID, including its variables.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, checkpointSelect+` WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	if err := s.loadVariables(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// LatestCheckpoint retrieves the most recently saved checkpoint. An empty
// component matches any model.
func (s *SQLiteStore) LatestCheckpoint(ctx context.Context, component string) (*Checkpoint, error) {
	query := checkpointSelect
	var args []interface{}
	if component != "" {
		query += ` WHERE component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.loadVariables(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// ListCheckpoints lists checkpoints newest first. An empty component matches
// any model; limit <= 0 means no limit.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, component string, limit int) ([]CheckpointSummary, error) {
	query := `
		SELECT c.id, c.component, c.model_time, c.created_at,
			(SELECT COUNT(*) FROM checkpoint_variables v WHERE v.checkpoint_id = c.id)
		FROM checkpoints c
	`
	var args []interface{}
	if component != "" {
		query += ` WHERE c.component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY c.created_at DESC, c.rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointSummary
	for rows.Next() {
		var sum CheckpointSummary
		var created int64
		if err := rows.Scan(&sum.ID, &sum.Component, &sum.CurrentTime, &created, &sum.Variables); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}
	return out, nil
}

// DeleteCheckpoint removes a checkpoint and its variables.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// PruneCheckpoints deletes all but the newest keep checkpoints of component.
func (s *SQLiteStore) PruneCheckpoints(ctx context.Context, component string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE component = ? AND id NOT IN (
			SELECT id FROM checkpoints WHERE component = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, component, component, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

const checkpointSelect = `
	SELECT id, component, model_version, start_time, end_time, model_time,
		time_step, time_units, attributes, kernel_state, created_at
	FROM checkpoints`

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var attrs string
	var created int64
	err := row.Scan(
		&cp.ID,
		&cp.Component,
		&cp.ModelVersion,
		&cp.StartTime,
		&cp.EndTime,
		&cp.CurrentTime,
		&cp.TimeStep,
		&cp.TimeUnits,
		&attrs,
		&cp.KernelState,
		&created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &cp.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes of checkpoint %s: %w", cp.ID, err)
	}
	cp.CreatedAt = time.Unix(0, created).UTC()
	return &cp, nil
}

func (s *SQLiteStore) loadVariables(ctx context.Context, cp *Checkpoint) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, element_type, shape, data
		FROM checkpoint_variables
		WHERE checkpoint_id = ?
		ORDER BY name
	`, cp.ID)
	if err != nil {
		return fmt.Errorf("failed to query variables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v        VariableSnapshot
			elemType string
			shape    string
			data     []byte
		)
		if err := rows.Scan(&v.Name, &elemType, &shape, &data); err != nil {
			return fmt.Errorf("failed to scan variable: %w", err)
		}
		if err := json.Unmarshal([]byte(shape), &v.Shape); err != nil {
			return fmt.Errorf("failed to decode shape of %q: %w", v.Name, err)
		}
		v.Values, err = DecodeValues(bmi.ElementType(elemType), data)
		if err != nil {
			return fmt.Errorf("failed to decode values of %q: %w", v.Name, err)
		}
		cp.Variables = append(cp.Variables, v)
	}
	return rows.Err()
}
