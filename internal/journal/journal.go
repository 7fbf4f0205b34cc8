// Package journal provides the optional PostgreSQL run journal.
// It mirrors the run manifests kept on disk into a database so collection
// coverage can be queried across machines.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/ideacorpus/harvester/internal/manifest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidManifest is returned when a manifest file does not match the expected structure.
var ErrInvalidManifest = errors.New("manifest does not match expected structure")

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Configured reports whether a journal target has been provided at all.
func (c Config) Configured() bool {
	return c.Host != ""
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	dbpool dbPool

	log *slog.Logger
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// Connect establishes a connection to the PostgreSQL database using the provided configuration.
func Connect(ctx context.Context, l *slog.Logger, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	dbpool, err := opts.newPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	l.Info("Connected to PostgreSQL run journal", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool, log: l}, nil
}

// Close closes the database connection pool.
func (m *Manager) Close() {
	m.dbpool.Close()
}

// RecordRun inserts the run and its invocations into the journal.
// Every insert is idempotent, keyed by run ID and invocation position, so
// recording the same run twice is a no-op and a run whose invocations were
// only partially journaled (e.g. a connection lost mid-run) is completed on
// the next attempt instead of being stuck without its invocation rows.
func (m Manager) RecordRun(ctx context.Context, rm manifest.RunManifest) error {
	id := rm.RunID
	if err := uuid.Validate(id); err != nil {
		id = uuid.NewString()
		m.log.Warn("Run has invalid UUID, generating a new one", "runId", rm.RunID, "newId", id, "error", err)
	}

	tag, err := m.dbpool.Exec(ctx,
		`INSERT INTO runs (
			id,
			entry_time,
			collection_time,
			start_date,
			end_date,
			pilot
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		id,                              // id
		time.Now(),                      // entry_time
		time.Unix(rm.CollectionTime, 0), // collection_time
		rm.StartDate,                    // start_date
		rm.EndDate,                      // end_date
		rm.Pilot,                        // pilot
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		m.log.Debug("Run already journaled, inserting any missing invocations", "runId", id)
	}

	for i, inv := range rm.Invocations {
		_, err := m.dbpool.Exec(ctx,
			`INSERT INTO run_invocations (
				run_id,
				position,
				job,
				program,
				args,
				exit_code,
				duration_ms,
				skipped,
				stderr_tail
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, position) DO NOTHING`,
			id,             // run_id
			i,              // position
			inv.Job,        // job
			inv.Program,    // program
			inv.Args,       // args
			inv.ExitCode,   // exit_code
			inv.DurationMS, // duration_ms
			inv.Skipped,    // skipped
			inv.StderrTail, // stderr_tail
		)
		if err != nil {
			return fmt.Errorf("failed to insert invocation %s of run %s: %w", inv.Job, id, err)
		}
	}

	m.log.Info("Journaled run", "runId", id, "invocations", len(rm.Invocations))
	return nil
}

// Sync journals every manifest found in dir.
// Manifests which do not match the expected structure are skipped with a
// warning; database failures abort the sync. Returns the number of manifests
// handed to the journal.
func (m Manager) Sync(ctx context.Context, dir string) (int, error) {
	manifests, err := manifest.GetAll(m.log, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list manifests: %v", err)
	}

	synced := 0
	for _, mf := range manifests {
		rm, err := decodeManifest(mf)
		if err != nil {
			m.log.Warn("Skipping manifest", "file", mf.Name, "error", err)
			continue
		}

		if err := m.RecordRun(ctx, rm); err != nil {
			return synced, err
		}
		synced++
	}

	return synced, nil
}

// decodeManifest strictly decodes a manifest file, rejecting unknown fields so
// malformed or foreign files never end up half-imported in the journal.
func decodeManifest(mf manifest.Manifest) (manifest.RunManifest, error) {
	data, err := mf.ReadMap()
	if err != nil {
		return manifest.RunManifest{}, err
	}

	var rm manifest.RunManifest
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &rm,
		TagName:     "json",
		ErrorUnused: true,
	})
	if err != nil {
		return manifest.RunManifest{}, fmt.Errorf("failed to create decoder: %v", err)
	}

	if err := decoder.Decode(data); err != nil {
		return manifest.RunManifest{}, errors.Join(ErrInvalidManifest, err)
	}

	return rm, nil
}
