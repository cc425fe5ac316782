package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Chunk is a persisted document chunk as supplied by the ingestion
// collaborator: extracted text plus its source file and position.
type Chunk struct {
	ID         int64
	SourceFile string
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// CreateUser inserts a user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1,$2,$3,NOW())`,
		id, email, passwordHash)
	return err
}

// GetUserByEmail returns the user id and password hash for email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

// ReplaceChunks clears the chunk table and inserts the given chunks in one
// transaction, so readers never observe a half-loaded corpus.
func (s *Store) ReplaceChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (source_file, chunk_index, content, created_at) VALUES ($1,$2,$3,NOW())`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.SourceFile, c.ChunkIndex, c.Content); err != nil {
			return fmt.Errorf("insert chunk %s/%d: %w", c.SourceFile, c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// ListChunks returns all chunks in stable insertion order. The vector index
// relies on this ordering staying identical between build and lookup.
func (s *Store) ListChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_file, chunk_index, content, created_at FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.SourceFile, &c.ChunkIndex, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}
