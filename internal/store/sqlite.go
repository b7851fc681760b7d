package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite serializes writers; indexing batches write concurrently.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS videos (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL DEFAULT '',
        summary TEXT,
        embedding_provider TEXT NOT NULL DEFAULT '',
        embedding_model TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS transcript_chunks (
        video_id TEXT NOT NULL,
        chunk_index INTEGER NOT NULL,
        text TEXT NOT NULL,
        start_time REAL NOT NULL,
        end_time REAL NOT NULL,
        timestamp TEXT NOT NULL,
        vector_id TEXT, -- NULL until upserted into the vector index
        embedding_provider TEXT NOT NULL DEFAULT '',
        state TEXT NOT NULL DEFAULT 'created' CHECK (state IN ('created', 'embedded', 'indexed')),
        PRIMARY KEY (video_id, chunk_index),
        FOREIGN KEY (video_id) REFERENCES videos (id)
    );

    CREATE TABLE IF NOT EXISTS analytics (
        id TEXT PRIMARY KEY, -- UUID
        video_id TEXT NOT NULL DEFAULT '',
        question TEXT NOT NULL,
        answer TEXT NOT NULL,
        mode TEXT NOT NULL,
        response_time_seconds REAL NOT NULL,
        provider TEXT NOT NULL DEFAULT '',
        model TEXT NOT NULL DEFAULT '',
        chunks_used INTEGER NOT NULL DEFAULT 0,
        used_summary BOOLEAN DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_analytics_video ON analytics (video_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Video methods
func (s *SQLiteStore) UpsertVideo(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO videos (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at
    `, id, title, time.Now(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert video: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (*Video, error) {
	var video Video
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, summary, embedding_provider, embedding_model, created_at, updated_at FROM videos WHERE id = ?", id,
	).Scan(&video.ID, &video.Title, &summary, &video.EmbeddingProvider, &video.EmbeddingModel, &video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	if summary.Valid {
		video.Summary = &summary.String
	}
	return &video, nil
}

// SetVideoEmbedding records which provider and model embedded the video's chunks.
func (s *SQLiteStore) SetVideoEmbedding(ctx context.Context, videoID, provider, model string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE videos SET embedding_provider = ?, embedding_model = ?, updated_at = ? WHERE id = ?",
		provider, model, time.Now(), videoID)
	if err != nil {
		return fmt.Errorf("failed to update video embedding: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("video %s not found, embedding not updated", videoID)
	}
	return nil
}

// GetSummary returns the cached video summary; ok is false when none is stored.
func (s *SQLiteStore) GetSummary(ctx context.Context, videoID string) (string, bool, error) {
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT summary FROM videos WHERE id = ?", videoID).Scan(&summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get summary: %w", err)
	}
	if !summary.Valid || summary.String == "" {
		return "", false, nil
	}
	return summary.String, true, nil
}

func (s *SQLiteStore) SetSummary(ctx context.Context, videoID, summary string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE videos SET summary = ?, updated_at = ? WHERE id = ?", summary, time.Now(), videoID)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("video %s not found, summary not updated", videoID)
	}
	return nil
}

// Chunk methods

// ReplaceChunks drops every stored chunk of the video and inserts chunks in the Created state.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, videoID string, chunks []ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM transcript_chunks WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO transcript_chunks (video_id, chunk_index, text, start_time, end_time, timestamp, vector_id, embedding_provider, state)
        VALUES (?, ?, ?, ?, ?, ?, NULL, '', 'created')
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, videoID, c.ChunkIndex, c.Text, c.StartTime, c.EndTime, c.Timestamp); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

const chunkColumns = "video_id, chunk_index, text, start_time, end_time, timestamp, vector_id, embedding_provider, state"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (ChunkRecord, error) {
	var c ChunkRecord
	var vectorID sql.NullString
	var state string
	if err := row.Scan(&c.VideoID, &c.ChunkIndex, &c.Text, &c.StartTime, &c.EndTime, &c.Timestamp, &vectorID, &c.EmbeddingProvider, &state); err != nil {
		return c, err
	}
	if vectorID.Valid {
		c.VectorID = &vectorID.String
	}
	parsed, err := ParseChunkState(state)
	if err != nil {
		return c, err
	}
	c.State = parsed
	return c, nil
}

func (s *SQLiteStore) ListChunks(ctx context.Context, videoID string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+chunkColumns+" FROM transcript_chunks WHERE video_id = ? ORDER BY chunk_index ASC", videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) GetChunk(ctx context.Context, videoID string, chunkIndex int) (*ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM transcript_chunks WHERE video_id = ? AND chunk_index = ?", videoID, chunkIndex)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &c, nil
}

// MarkChunksEmbedded moves chunks to the Embedded state.
func (s *SQLiteStore) MarkChunksEmbedded(ctx context.Context, videoID string, chunkIndexes []int, provider string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin embed transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE transcript_chunks SET state = 'embedded', embedding_provider = ? WHERE video_id = ? AND chunk_index = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare embed update: %w", err)
	}
	defer stmt.Close()

	for _, idx := range chunkIndexes {
		if _, err := stmt.ExecContext(ctx, provider, videoID, idx); err != nil {
			return fmt.Errorf("failed to mark chunk %d embedded: %w", idx, err)
		}
	}
	return tx.Commit()
}

// MarkChunksIndexed records vector ids (keyed by chunk index) and moves chunks to Indexed.
func (s *SQLiteStore) MarkChunksIndexed(ctx context.Context, videoID string, vectorIDs map[int]string, provider string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE transcript_chunks SET state = 'indexed', vector_id = ?, embedding_provider = ? WHERE video_id = ? AND chunk_index = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare index update: %w", err)
	}
	defer stmt.Close()

	for idx, vectorID := range vectorIDs {
		if _, err := stmt.ExecContext(ctx, vectorID, provider, videoID, idx); err != nil {
			return fmt.Errorf("failed to mark chunk %d indexed: %w", idx, err)
		}
	}
	return tx.Commit()
}

// UpdateChunkText rewrites a chunk's text together with the vector that now embeds it.
// Time bounds and index are kept and the chunk stays Indexed.
func (s *SQLiteStore) UpdateChunkText(ctx context.Context, videoID string, chunkIndex int, text, vectorID, provider string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transcript_chunks SET text = ?, state = 'indexed', vector_id = ?, embedding_provider = ? WHERE video_id = ? AND chunk_index = ?",
		text, vectorID, provider, videoID, chunkIndex)
	if err != nil {
		return fmt.Errorf("failed to update chunk text: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("chunk %d of video %s not found, text not updated", chunkIndex, videoID)
	}
	return nil
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, videoID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM transcript_chunks WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// IndexStatus counts chunks per lifecycle state. A video is searchable once a majority of
// its chunks are indexed.
func (s *SQLiteStore) IndexStatus(ctx context.Context, videoID string) (*IndexStatus, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM transcript_chunks WHERE video_id = ? GROUP BY state", videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk states: %w", err)
	}
	defer rows.Close()

	status := &IndexStatus{VideoID: videoID}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan chunk state row: %w", err)
		}
		parsed, err := ParseChunkState(state)
		if err != nil {
			return nil, err
		}
		switch parsed {
		case ChunkCreated:
			status.Created = count
		case ChunkEmbedded:
			status.Embedded = count
		case ChunkIndexed:
			status.Indexed = count
		}
		status.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	status.Searchable = status.Total > 0 && status.Indexed*2 > status.Total
	return status, nil
}

// Analytics methods
func (s *SQLiteStore) RecordAnalytics(ctx context.Context, rec AnalyticsRecord) error {
	stmt, err := s.db.PrepareContext(ctx, `
        INSERT INTO analytics (id, video_id, question, answer, mode, response_time_seconds, provider, model, chunks_used, used_summary, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare analytics insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, rec.ID, rec.VideoID, rec.Question, rec.Answer, rec.Mode, rec.ResponseTimeSeconds,
		rec.Provider, rec.Model, rec.ChunksUsed, rec.UsedSummary, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute analytics insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAnalytics(ctx context.Context, videoID string, limit int) ([]AnalyticsRecord, error) {
	query := `
        SELECT id, video_id, question, answer, mode, response_time_seconds, provider, model, chunks_used, used_summary, created_at
        FROM analytics
        WHERE video_id = ?
        ORDER BY created_at DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}
	defer rows.Close()

	var records []AnalyticsRecord
	for rows.Next() {
		var rec AnalyticsRecord
		if err := rows.Scan(&rec.ID, &rec.VideoID, &rec.Question, &rec.Answer, &rec.Mode, &rec.ResponseTimeSeconds,
			&rec.Provider, &rec.Model, &rec.ChunksUsed, &rec.UsedSummary, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
