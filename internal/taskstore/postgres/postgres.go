// Package postgres implements taskstore.Store backed by PostgreSQL, for
// installs that run their own tracker instead of pointing agents at a
// hosted forge.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements taskstore.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

var _ taskstore.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ListUnits(ctx context.Context, filter taskstore.UnitFilter) ([]*model.WorkUnit, error) {
	return queryListUnits(ctx, s.db, filter)
}

func (s *PostgresStore) GetUnit(ctx context.Context, id int) (*model.WorkUnit, error) {
	return queryGetUnit(ctx, s.db, id)
}

func (s *PostgresStore) CreateUnit(ctx context.Context, title, body string, labels []string) (*model.WorkUnit, error) {
	return queryCreateUnit(ctx, s.db, title, body, labels)
}

func (s *PostgresStore) UpdateLabels(ctx context.Context, id int, add, remove []string) error {
	return queryUpdateLabels(ctx, s.db, id, add, remove)
}

func (s *PostgresStore) AddComment(ctx context.Context, id int, body string) error {
	return queryAddComment(ctx, s.db, id, body)
}

func (s *PostgresStore) CloseUnit(ctx context.Context, id int) error {
	return queryCloseUnit(ctx, s.db, id)
}

func (s *PostgresStore) ListOpenChangeSets(ctx context.Context) ([]*model.ChangeSet, error) {
	return queryListOpenChangeSets(ctx, s.db)
}

func (s *PostgresStore) GetReviewState(ctx context.Context, id int) (model.ReviewState, error) {
	return queryGetReviewState(ctx, s.db, id)
}

func (s *PostgresStore) Merge(ctx context.Context, id int, strategy model.MergeStrategy) error {
	return queryMerge(ctx, s.db, id)
}
