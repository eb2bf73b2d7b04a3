package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/storage"
)

var (
	_ storage.Store              = (*Store)(nil)
	_ storage.SimilaritySearcher = (*Store)(nil)
)

// Store implements storage.Store and storage.SimilaritySearcher using PostgreSQL.
type Store struct {
	db                *sql.DB
	logger            *zap.Logger
	pgvectorAvailable bool // true when the pgvector extension is present
}

// NewStore connects to PostgreSQL, applies the schema and enables pgvector
// when the server supports it.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping %s: %w", RedactDSN(dsn), err)
	}

	s := &Store{db: db, logger: logger}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	// Servers without pgvector keep working; similarity ranking then
	// happens in process.
	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		logger.Warn("postgres: pgvector extension not available, vector search disabled", zap.Error(err))
	} else if _, err := db.Exec(MigrationPgvector); err != nil {
		logger.Warn("postgres: failed to apply pgvector migration, vector search disabled", zap.Error(err))
	} else {
		s.pgvectorAvailable = true
	}

	logger.Info("postgres: connected",
		zap.String("dsn", RedactDSN(dsn)),
		zap.Bool("pgvector", s.pgvectorAvailable))
	return s, nil
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// VectorSearchAvailable reports whether similarity ranking runs in the database.
func (s *Store) VectorSearchAvailable() bool {
	return s.pgvectorAvailable
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableString(str string) sql.NullString {
	if str == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: str, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
