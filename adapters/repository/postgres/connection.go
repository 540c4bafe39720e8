// Package postgres implements the TaskRepository, CollusionRepository,
// and ValidatorInteractionRepository ports against PostgreSQL via pgx,
// grounded on the teacher's internal/db/postgres.go connection and
// transactional-insert idioms.
package postgres

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the shared connection pool used by all three repository
// adapters in this package.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool and verifies connectivity.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("Successfully connected to PostgreSQL for evaluation engine")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the SQL file at schemaPath.
func (s *Store) InitSchema(ctx context.Context, schemaPath string) error {
	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("Evaluation engine schema initialized")
	return nil
}

// Pool exposes the underlying pool for components that need raw access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
