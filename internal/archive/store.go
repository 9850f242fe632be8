// Package archive persists finished sessions locally in SQLite:
// conversation transcripts and speech-statistics assessments.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"xiaoqiu/pkg/types"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		mode       TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at   DATETIME NOT NULL,
		transcript TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS assessments (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		created_at    DATETIME NOT NULL,
		speaking_secs REAL NOT NULL,
		silence_secs  REAL NOT NULL,
		word_estimate INTEGER NOT NULL,
		words_per_sec REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, started_at);
`

// Store is the SQLite archive. All writes go through a single-writer
// goroutine; SQLite handles concurrent reads but contends on writers.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	writeTimeout time.Duration
	shutdown     chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

func NewStore(path string, writeTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		writeTimeout: writeTimeout,
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("archive is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(s.writeTimeout):
		return fmt.Errorf("archive write timeout")
	case <-s.shutdown:
		return fmt.Errorf("archive is shutting down")
	}
}

// SaveConversation archives one finished session transcript.
func (s *Store) SaveConversation(rec *types.ConversationRecord) error {
	return s.executeWrite(func(db *sql.DB) error {
		transcriptJSON, err := json.Marshal(rec.Transcript)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %w", err)
		}

		query := `
			INSERT INTO conversations (id, user_id, mode, started_at, ended_at, transcript)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err = db.Exec(query,
			rec.ID,
			rec.UserID,
			rec.Mode,
			rec.StartedAt,
			rec.EndedAt,
			string(transcriptJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		return nil
	})
}

// SaveAssessment archives one speech-statistics summary.
func (s *Store) SaveAssessment(rec *types.AssessmentRecord) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO assessments (id, user_id, created_at, speaking_secs, silence_secs, word_estimate, words_per_sec)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.Exec(query,
			rec.ID,
			rec.UserID,
			rec.CreatedAt,
			rec.SpeakingSecs,
			rec.SilenceSecs,
			rec.WordEstimate,
			rec.WordsPerSec,
		)
		if err != nil {
			return fmt.Errorf("failed to insert assessment: %w", err)
		}
		return nil
	})
}

// ListConversations returns a learner's most recent sessions, newest
// first. A non-positive limit returns everything.
func (s *Store) ListConversations(userID string, limit int) ([]*types.ConversationRecord, error) {
	query := `
		SELECT id, user_id, mode, started_at, ended_at, transcript
		FROM conversations
		WHERE user_id = ?
		ORDER BY started_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var records []*types.ConversationRecord
	for rows.Next() {
		var rec types.ConversationRecord
		var transcriptJSON string

		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Mode, &rec.StartedAt, &rec.EndedAt, &transcriptJSON); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		if err := json.Unmarshal([]byte(transcriptJSON), &rec.Transcript); err != nil {
			log.Printf("Skipping conversation with corrupt transcript id=%s error=%v", rec.ID, err)
			continue
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// DeleteConversation removes one archived session.
func (s *Store) DeleteConversation(id string) error {
	return s.executeWrite(func(db *sql.DB) error {
		result, err := db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("conversation %s not found", id)
		}
		return nil
	})
}

// Close stops the writer and closes the database. Safe to call once;
// later writes fail cleanly.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}
