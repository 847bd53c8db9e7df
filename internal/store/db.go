package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/iotlinker/internal/config"
	"github.com/vesaa/iotlinker/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB is the GORM implementation of Store.
type DB struct {
	db  *gorm.DB
	dsn string
	log *zap.Logger
}

// Open connects to the configured database and applies the pool limits.
func Open(cfg *config.Config, log *zap.Logger) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported db_driver %q (use 'postgres' or 'sqlite')", cfg.DBDriver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	s := New(gdb, log)
	s.dsn = cfg.DBDSN
	log.Info("database opened", zap.String("driver", cfg.DBDriver))
	return s, nil
}

// New wraps an already opened GORM handle.
func New(gdb *gorm.DB, log *zap.Logger) *DB {
	return &DB{db: gdb, log: log}
}

// Migrate brings the schema up to date: versioned SQL migrations on
// PostgreSQL, AutoMigrate on SQLite.
func (s *DB) Migrate(ctx context.Context) error {
	if s.db.Dialector.Name() == "postgres" {
		return s.migrateSQL(func(m *migrate.Migrate) error { return m.Up() })
	}
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.DeviceType{},
		&models.Channel{},
		&models.Device{},
		&models.DeviceData{},
		&models.Alert{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// MigrateDown reverts every versioned migration (PostgreSQL only).
func (s *DB) MigrateDown() error {
	if s.db.Dialector.Name() != "postgres" {
		return errors.New("migrate down is only supported for db_driver = postgres")
	}
	return s.migrateSQL(func(m *migrate.Migrate) error { return m.Down() })
}

func (s *DB) migrateSQL(run func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, s.dsn)
	if err != nil {
		return fmt.Errorf("migrate new: %w", err)
	}
	defer m.Close()

	if err := run(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	version, dirty, _ := m.Version()
	s.log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Ping checks database reachability.
func (s *DB) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// likePattern lowercases term and escapes LIKE wildcards so it matches literally.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
