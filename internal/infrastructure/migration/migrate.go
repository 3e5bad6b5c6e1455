package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator applies the SQL migrations of a directory to Postgres
type Migrator struct {
	m      *migrate.Migrate
	dir    string
	logger *zap.Logger
}

// New creates a Migrator over an open lib/pq connection
func New(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations in %s: %w", dir, err)
	}
	m.Log = &zapMigrateLogger{logger: logger.Named("migrate")}
	return &Migrator{m: m, dir: dir, logger: logger}, nil
}

// Up applies every pending migration. Cancelling ctx stops after the
// migration in progress.
func (r *Migrator) Up(ctx context.Context) error {
	return r.run(ctx, "up", r.m.Up)
}

// Down rolls back every applied migration
func (r *Migrator) Down(ctx context.Context) error {
	return r.run(ctx, "down", r.m.Down)
}

// Steps applies n migrations; negative n rolls back
func (r *Migrator) Steps(ctx context.Context, n int) error {
	return r.run(ctx, fmt.Sprintf("steps %d", n), func() error { return r.m.Steps(n) })
}

// GoTo migrates up or down to version
func (r *Migrator) GoTo(ctx context.Context, version uint) error {
	return r.run(ctx, fmt.Sprintf("goto %d", version), func() error { return r.m.Migrate(version) })
}

func (r *Migrator) run(ctx context.Context, op string, fn func() error) error {
	stop := context.AfterFunc(ctx, func() {
		select {
		case r.m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("Schema already current", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	r.logger.Info("Migration finished",
		zap.String("op", op),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Version returns the applied version; zero when nothing is applied
func (r *Migrator) Version() (uint, bool, error) {
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Status is the applied version and the migrations still pending
type Status struct {
	Version uint
	Dirty   bool
	Pending []File
}

// Status compares the applied version with the files on disk
func (r *Migrator) Status() (*Status, error) {
	version, dirty, err := r.Version()
	if err != nil {
		return nil, err
	}
	files, err := Files(r.dir)
	if err != nil {
		return nil, err
	}
	st := &Status{Version: version, Dirty: dirty}
	for _, f := range files {
		if f.Version > uint64(version) {
			st.Pending = append(st.Pending, f)
		}
	}
	return st, nil
}

// Force records version as applied without running anything. It is the
// way out of a dirty state after a failed migration was fixed by hand.
func (r *Migrator) Force(version int) error {
	r.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles
func (r *Migrator) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

// zapMigrateLogger adapts zap to migrate.Logger
type zapMigrateLogger struct {
	logger *zap.Logger
}

func (l *zapMigrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *zapMigrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}
