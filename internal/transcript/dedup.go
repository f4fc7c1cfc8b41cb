package transcript

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DedupStore records processed transcript ids in SQLite so repeat
// webhook deliveries and process restarts never re-trigger the agent.
type DedupStore struct {
	db *sql.DB
}

// NewDedupStore opens (or creates) the dedup database at dbPath
func NewDedupStore(dbPath string) (*DedupStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DedupStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *DedupStore) Close() error {
	return s.db.Close()
}

func (s *DedupStore) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS processed_transcripts (
			transcript_id TEXT PRIMARY KEY,
			processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	_, err := s.db.Exec(query)
	return err
}

// MarkProcessed records a transcript id and reports whether this call
// was the first to do so. The insert is atomic, so concurrent deliveries
// of the same id elect exactly one winner.
func (s *DedupStore) MarkProcessed(transcriptID string) (bool, error) {
	query := `INSERT OR IGNORE INTO processed_transcripts (transcript_id) VALUES (?)`

	result, err := s.db.Exec(query, transcriptID)
	if err != nil {
		return false, fmt.Errorf("failed to record transcript: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return rows > 0, nil
}

// Seen reports whether a transcript id has already been processed
func (s *DedupStore) Seen(transcriptID string) (bool, error) {
	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM processed_transcripts WHERE transcript_id = ?`,
		transcriptID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query transcript: %w", err)
	}
	return true, nil
}

// Ping verifies the database connection is usable
func (s *DedupStore) Ping() error {
	return s.db.Ping()
}
