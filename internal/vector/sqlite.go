package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

// SQLiteStore persists collections in SQLite. A replacement is written in one transaction, so
// readers see either the previous collection or the new one.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	dimensions int
	logger     *zap.Logger // optional
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLogger sets a logger for replace and delete debug output.
func WithLogger(l *zap.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, dimensions int, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store: database path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas below in effect and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath, dimensions: dimensions}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		source_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		generation TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		source_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		start_time REAL NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (source_id, position)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateOrReplace deletes any existing collection for sourceID and inserts the new one in a
// single transaction.
func (s *SQLiteStore) CreateOrReplace(ctx context.Context, sourceID string, chunks []models.Chunk, vectors [][]float32) (*models.Collection, error) {
	meta, records, err := buildRecords(sourceID, chunks, vectors, s.dimensions)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("delete old collection: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (source_id, name, dimensions, chunk_count, generation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		meta.SourceID, meta.Name, meta.Dimensions, meta.ChunkCount, meta.Generation, meta.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (source_id, position, id, content, start_time, vector)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, sourceID, r.Position, r.ID, r.Text, r.StartTime, float32SliceToBytes(r.Vector)); err != nil {
			return nil, fmt.Errorf("insert chunk %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("collection replaced",
			zap.String("collection", meta.Name),
			zap.Int("chunks", meta.ChunkCount),
			zap.String("generation", meta.Generation))
	}
	return &meta, nil
}

// Query loads sourceID's collection inside a read transaction and ranks it by cosine distance.
func (s *SQLiteStore) Query(ctx context.Context, sourceID string, vector []float32, k int) ([]models.Hit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin query: %w", err)
	}
	defer tx.Rollback()

	var dims int
	err = tx.QueryRowContext(ctx, `SELECT dimensions FROM collections WHERE source_id = ?`, sourceID).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	if len(vector) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", models.ErrDimensionMismatch, len(vector), dims)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT position, id, content, start_time, vector
		 FROM chunks WHERE source_id = ? ORDER BY position`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			r    models.Record
			blob []byte
		)
		if err := rows.Scan(&r.Position, &r.ID, &r.Text, &r.StartTime, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		r.Vector = bytesToFloat32Slice(blob)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return nearest(records, vector, k)
}

// Delete removes sourceID's collection and chunks.
func (s *SQLiteStore) Delete(ctx context.Context, sourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	return tx.Commit()
}

// Collections lists collection metadata ordered by source id.
func (s *SQLiteStore) Collections(ctx context.Context) ([]models.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, name, dimensions, chunk_count, generation, created_at
		 FROM collections ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Collection
	for rows.Next() {
		var (
			c       models.Collection
			created time.Time
		)
		if err := rows.Scan(&c.SourceID, &c.Name, &c.Dimensions, &c.ChunkCount, &c.Generation, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = created
		out = append(out, c)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DiskUsageBytes returns the size of the database file and its WAL and shared-memory files.
// Missing files count as zero.
func (s *SQLiteStore) DiskUsageBytes() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
