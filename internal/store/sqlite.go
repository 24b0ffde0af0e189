package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DefaultDimension matches text-embedding-ada-002.
const DefaultDimension = 1536

func init() {
	sqlite_vec.Auto()
}

// SQLite stores records in a messages table and their embeddings in a
// sqlite-vec virtual table.
type SQLite struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, dimension int, logger zerolog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLite{
		db:        db,
		dimension: dimension,
		logger:    logger.With().Str("component", "store").Str("backend", BackendSQLite).Logger(),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", path).Int("dimension", dimension).Msg("Message store opened")
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS message_embeddings USING vec0(
			message_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	return nil
}

// Append inserts rec. An embedding of the wrong dimension is not stored; the
// message itself still is.
func (s *SQLite) Append(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (id, sender, body, created_at) VALUES (?, ?, ?, ?)",
		rec.ID, rec.Sender, rec.Body, rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if len(rec.Embedding) > 0 {
		if len(rec.Embedding) != s.dimension {
			s.logger.Warn().
				Str("id", rec.ID).
				Int("got", len(rec.Embedding)).
				Int("want", s.dimension).
				Msg("Skipping embedding with unexpected dimension")
		} else {
			embeddingJSON, err := json.Marshal(rec.Embedding)
			if err != nil {
				return fmt.Errorf("failed to marshal embedding: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO message_embeddings (message_id, embedding) VALUES (?, ?)",
				rec.ID, string(embeddingJSON),
			)
			if err != nil {
				return fmt.Errorf("failed to store embedding: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Recent returns the newest limit records, oldest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, body, created_at FROM (
			SELECT seq, id, sender, body, created_at
			FROM messages
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Sender, &rec.Body, &createdAt); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(0, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Similar ranks embedded records by cosine distance to vec.
func (s *SQLite) Similar(ctx context.Context, vec []float32, k int) ([]Record, error) {
	if k <= 0 || len(vec) == 0 {
		return []Record{}, nil
	}
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dimension)
	}

	embeddingJSON, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			m.id,
			m.sender,
			m.body,
			m.created_at,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM message_embeddings e
		JOIN messages m ON m.id = e.message_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar messages: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var createdAt int64
		var distance float64
		if err := rows.Scan(&rec.ID, &rec.Sender, &rec.Body, &createdAt, &distance); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(0, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
