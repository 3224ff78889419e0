package postgres

import (
	"context"
	"errors"
	"fmt"

	"chartgate/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateHash is returned when a payment hash was already submitted.
	ErrDuplicateHash = errors.New("transaction hash already submitted")
	// ErrNotPending is returned when a transaction left the pending state.
	ErrNotPending = errors.New("transaction is not pending")
)

type PostgresClient struct {
	DB *gorm.DB
}

// NewClient opens a PostgreSQL-backed client.
func NewClient(dsn string) (*PostgresClient, error) {
	client, err := open(postgres.Open(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return client, nil
}

// NewSQLiteClient opens a SQLite-backed client, for local runs and tests.
// Use ":memory:" for a throwaway database.
func NewSQLiteClient(path string) (*PostgresClient, error) {
	client, err := open(sqlite.Open(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// a single connection keeps an in-memory database alive and serialises writers
	db, err := client.DB.DB()
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return client, nil
}

func open(dialector gorm.Dialector) (*PostgresClient, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return &PostgresClient{DB: db}, nil
}

// Initialize connects using the configured driver, optionally creates the
// database and runs AutoMigrate.
func Initialize(cfg *config.Config) (*PostgresClient, error) {
	var (
		client *PostgresClient
		err    error
	)

	// Open connection for the configured driver
	switch cfg.Database.Driver {
	case "sqlite":
		client, err = NewSQLiteClient(cfg.Database.SQLitePath)
	default:
		// Create database on first boot
		if cfg.Database.CreateDB {
			if err := CreateDatabase(cfg.Postgres, cfg.Log.Environment); err != nil {
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
		}
		client, err = NewClient(cfg.Postgres.DSN(cfg.Log.Environment))
		if err == nil {
			err = client.configurePool(cfg.Postgres)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	// Auto migrate tables
	if err := client.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) configurePool(cfg config.PostgresConfig) error {
	db, err := p.DB.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

// AutoMigrate creates or updates every table owned by the service.
func (p *PostgresClient) AutoMigrate() error {
	if err := p.DB.AutoMigrate(
		&PlanRecord{},
		&UserRecord{},
		&TransactionRecord{},
		&PriceSampleRecord{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func (p *PostgresClient) IsHealthy(ctx context.Context) bool {
	db, err := p.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (p *PostgresClient) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
