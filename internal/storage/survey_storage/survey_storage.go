// Package surveystorage persists survey runs and their points in SQLite.
package surveystorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"drilltrack/internal/survey"
	"drilltrack/internal/util/logger/sl"
	"drilltrack/migrations"
	"drilltrack/pkg/migrator"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

// Common errors
var (
	ErrDBOperationFailed = errors.New("database operation failed")
	ErrInvalidInput      = errors.New("invalid input parameters")
)

// Config contains configuration for the Storage
type Config struct {
	DBPath            string
	ConnectionTimeout time.Duration
	// SkipMigrations leaves the schema untouched on open.
	SkipMigrations bool
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		DBPath:            "drilltrack.sqlite",
		ConnectionTimeout: 5 * time.Second,
	}
}

// Storage stores survey runs and points
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
	config Config
	mu     sync.Mutex // mutex for serializing write operations
}

// New opens the database at config.DBPath and brings its schema up to date.
func New(config Config, logger *slog.Logger) (*Storage, error) {
	const op = "surveystorage.New"

	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = DefaultConfig().ConnectionTimeout
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		config.DBPath, config.ConnectionTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	// set connection parameters
	db.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to connect: %w", op, err)
	}

	if !config.SkipMigrations {
		m := migrator.NewMigrator(db, migrator.Config{FS: migrations.FS}, logger)
		if err := m.MigrateUp(); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &Storage{
		db:     db,
		logger: logger.With(slog.String("storage", "sqlite")),
		config: config,
	}, nil
}

// DB exposes the underlying handle for tooling such as migrations.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.logger.Info("Closing survey storage")
	return s.db.Close()
}

// InsertRun stores run and returns its id. A caller-supplied id is kept; an id
// that already exists or is not positive is an error.
func (s *Storage) InsertRun(ctx context.Context, run survey.Run) (int64, error) {
	if err := run.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if run.ID != nil && *run.ID <= 0 {
		return 0, fmt.Errorf("%w: run id %d must be positive", ErrInvalidInput, *run.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO survey_runs (id, name, mn_time, len, mine, work, factory, drilling, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		value(run.ID), run.Name, run.MnTime, run.Len, run.Mine, run.Work, run.Factory, run.Drilling,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert run: %v", ErrDBOperationFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read run id: %v", ErrDBOperationFailed, err)
	}
	return id, nil
}

// InsertPoint stores one point. The point must reference a run.
func (s *Storage) InsertPoint(ctx context.Context, p survey.Point) (int64, error) {
	if p.RunID == nil {
		return 0, fmt.Errorf("%w: point has no run id", ErrInvalidInput)
	}
	if p.ID != nil && *p.ID <= 0 {
		return 0, fmt.Errorf("%w: point id %d must be positive", ErrInvalidInput, *p.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO survey_points (id, run_id, time, depth, pitch, roll, heading, design_pitch, design_heading)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		value(p.ID), *p.RunID, value(p.Time), p.Depth,
		value(p.Pitch), value(p.Roll), value(p.Heading), value(p.DesignPitch), value(p.DesignHeading),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert point: %v", ErrDBOperationFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read point id: %v", ErrDBOperationFailed, err)
	}
	return id, nil
}

// ListRuns returns every run ordered by id.
func (s *Storage) ListRuns(ctx context.Context) ([]survey.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, mn_time, len, mine, work, factory, drilling
		FROM survey_runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query runs: %v", ErrDBOperationFailed, err)
	}
	defer rows.Close()

	runs := []survey.Run{}
	for rows.Next() {
		var (
			r  survey.Run
			id int64
		)
		if err := rows.Scan(&id, &r.Name, &r.MnTime, &r.Len, &r.Mine, &r.Work, &r.Factory, &r.Drilling); err != nil {
			return nil, fmt.Errorf("%w: failed to scan run: %v", ErrDBOperationFailed, err)
		}
		r.ID = &id
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBOperationFailed, err)
	}
	return runs, nil
}

// ListPoints returns the points of a run ordered by depth.
func (s *Storage) ListPoints(ctx context.Context, runID int64) ([]survey.Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, time, depth, pitch, roll, heading, design_pitch, design_heading
		FROM survey_points WHERE run_id = ? ORDER BY depth, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query points: %v", ErrDBOperationFailed, err)
	}
	defer rows.Close()

	points := []survey.Point{}
	for rows.Next() {
		var (
			id, run int64
			depth   float64
			tm      sql.NullString
		)
		var pitch, roll, heading, designPitch, designHead sql.NullFloat64
		if err := rows.Scan(&id, &run, &tm, &depth, &pitch, &roll, &heading, &designPitch, &designHead); err != nil {
			s.logger.Error("failed to scan point", slog.Int64("run_id", runID), sl.Err(err))
			return nil, fmt.Errorf("%w: failed to scan point: %v", ErrDBOperationFailed, err)
		}
		points = append(points, survey.Point{
			ID:            &id,
			RunID:         &run,
			Time:          nullString(tm),
			Depth:         depth,
			Pitch:         nullFloat(pitch),
			Roll:          nullFloat(roll),
			Heading:       nullFloat(heading),
			DesignPitch:   nullFloat(designPitch),
			DesignHeading: nullFloat(designHead),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBOperationFailed, err)
	}
	return points, nil
}

// value unwraps optional fields into SQL parameters; nil becomes NULL.
func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
