package repository

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore is the Store implementation backed by PostgreSQL.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore opens a PostgreSQL connection pool and wraps it in a PostgresStore.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{sqlStore: newSQLStore(db)}, nil
}
