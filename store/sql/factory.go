package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	recaptchamigrations "github.com/goliatone/go-recaptcha/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DBConfig satisfies the go-persistence-bun client config.
type DBConfig struct {
	Driver      string        `koanf:"driver" json:"driver"`
	DSN         string        `koanf:"dsn" json:"dsn"`
	Debug       bool          `koanf:"debug" json:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" json:"ping_timeout"`
}

func (c DBConfig) GetDebug() bool { return c.Debug }

func (c DBConfig) GetDriver() string { return normalizeDriver(c.Driver) }

func (c DBConfig) GetServer() string { return strings.TrimSpace(c.DSN) }

func (c DBConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DBConfig) GetOtelIdentifier() string { return "go-recaptcha" }

// Dialect maps the driver to a migration dialect name.
func (c DBConfig) Dialect() string {
	if normalizeDriver(c.Driver) == DriverPostgres {
		return recaptchamigrations.DialectPostgres
	}
	return recaptchamigrations.DialectSQLite
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch normalizeDriver(driver) {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func openSQL(cfg DBConfig) (*sql.DB, schema.Dialect, error) {
	dialect, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn := cfg.GetServer()
	if dsn == "" {
		return nil, nil, fmt.Errorf("sqlstore: dsn is required")
	}
	sqlDB, err := sql.Open(cfg.GetDriver(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", cfg.GetDriver(), err)
	}
	if cfg.GetDriver() == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	return sqlDB, dialect, nil
}

// OpenDB opens a bare bun database for the configured driver.
func OpenDB(cfg DBConfig) (*bun.DB, error) {
	sqlDB, dialect, err := openSQL(cfg)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// OpenPersistence opens a go-persistence-bun client with the audit log
// migrations registered for the configured dialect.
func OpenPersistence(cfg DBConfig) (*persistence.Client, error) {
	sqlDB, dialect, err := openSQL(cfg)
	if err != nil {
		return nil, err
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	err = recaptchamigrations.Register(context.Background(), func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, cfg.Dialect())
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
