package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationTable = "schema_migrations"

// DBOptions tunes the SQLite connection.
type DBOptions struct {
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// NewDB opens a SQLite database through the pure-Go driver, applies
// connection pragmas and runs the embedded migrations.
func NewDB(ctx context.Context, path string, opts DBOptions) (*gorm.DB, error) {
	if path == "" {
		path = "glance.db"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if err := ensureDirForSQLite(path); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		slog.NewLogLogger(opts.Logger.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite",
		DSN:        buildDSN(path, opts.BusyTimeout),
	}), &gorm.Config{
		Logger:                 dbLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if isMemory(path) {
		// Every new connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(ctx, db, opts.Logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// migrate applies the embedded migrations through a goose provider bound to
// this connection, so concurrent stores never share goose state.
func migrate(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	sources, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, sources,
		goose.WithTableName(migrationTable))
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.Info("migration applied",
			slog.String("component", "migrations"),
			slog.Int64("version", r.Source.Version),
			slog.String("file", filepath.Base(r.Source.Path)),
			slog.Duration("took", r.Duration))
	}
	return nil
}

// buildDSN adds the connection pragmas the store relies on. Writers take
// the lock at BEGIN so two transactions never deadlock on upgrade.
func buildDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if !isMemory(path) {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	q.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

func isMemory(path string) bool {
	return strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(path string) error {
	if isMemory(path) {
		return nil
	}
	clean := strings.TrimPrefix(path, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// DatabaseFile returns the on-disk path behind a DSN, or "" for memory stores.
func DatabaseFile(path string) string {
	if isMemory(path) {
		return ""
	}
	return strings.Split(strings.TrimPrefix(path, "file:"), "?")[0]
}
