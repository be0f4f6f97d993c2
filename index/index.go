// Package index records which videos have already been processed, so
// batch and watch runs never analyze the same file twice. The record is
// consulted and updated between runs, never concurrently within one.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_videos (
	path         TEXT PRIMARY KEY,
	video_id     TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	event_count  INTEGER NOT NULL,
	processed_at TIMESTAMP NOT NULL
);`

// Store is a sqlite-backed processed-video index.
type Store struct {
	db *sql.DB
}

// Open creates or opens the index database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Seen reports whether videoPath has already been processed.
func (s *Store) Seen(videoPath string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM processed_videos WHERE path = ?`, videoPath,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records a completed run for videoPath. Re-marking an existing path
// overwrites the previous record.
func (s *Store) Mark(videoPath, videoID, runID string, eventCount int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO processed_videos
		 (path, video_id, run_id, event_count, processed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		videoPath, videoID, runID, eventCount, time.Now().UTC(),
	)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
