// Package store archives conversation transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// SQLiteStore keeps every transcript entry ever rendered, across logouts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS transcript_entries (
			entry_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT,
			choices TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript_entries(session_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendEntry archives one entry of sessionID.
func (s *SQLiteStore) AppendEntry(ctx context.Context, sessionID string, entry transcript.Entry) error {
	var choices sql.NullString
	if entry.Choices != nil {
		data, err := json.Marshal(entry.Choices)
		if err != nil {
			return fmt.Errorf("encode choices: %w", err)
		}
		choices = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_entries (entry_id, session_id, seq, role, kind, text, choices, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), sessionID, entry.Seq, string(entry.Role), string(entry.Kind),
		entry.Text, choices, entry.CreatedAt.UTC())
	return err
}

// ListEntries returns every archived entry of sessionID in the order it was
// rendered. Seq restarts when a closed session id is reused, so it is not
// unique.
func (s *SQLiteStore) ListEntries(ctx context.Context, sessionID string) ([]transcript.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, kind, text, choices, created_at FROM transcript_entries
		 WHERE session_id = ? ORDER BY rowid`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []transcript.Entry{}
	for rows.Next() {
		var (
			e          transcript.Entry
			role, kind string
			text       sql.NullString
			choices    sql.NullString
			createdAt  time.Time
		)
		if err := rows.Scan(&e.Seq, &role, &kind, &text, &choices, &createdAt); err != nil {
			return nil, err
		}
		e.Role = transcript.Role(role)
		e.Kind = transcript.Kind(kind)
		e.Text = text.String
		e.CreatedAt = createdAt
		if choices.Valid {
			var group transcript.ChoiceGroup
			if err := json.Unmarshal([]byte(choices.String), &group); err != nil {
				return nil, fmt.Errorf("decode choices: %w", err)
			}
			e.Choices = &group
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Archiver adapts the store into per-session transcript sinks.
type Archiver struct {
	store  *SQLiteStore
	logger *zap.Logger
}

// NewArchiver creates an Archiver writing to store.
func NewArchiver(store *SQLiteStore, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, logger: logger}
}

// ForSession returns the sink archiving sessionID's transcript.
func (a *Archiver) ForSession(sessionID string) transcript.Sink {
	return &sessionArchive{archiver: a, sessionID: sessionID}
}

type sessionArchive struct {
	archiver  *Archiver
	sessionID string
}

func (s *sessionArchive) OnEntry(e transcript.Entry) {
	if err := s.archiver.store.AppendEntry(context.Background(), s.sessionID, e); err != nil {
		s.archiver.logger.Error("failed to archive transcript entry",
			zap.String("session_id", s.sessionID),
			zap.Int("seq", e.Seq),
			zap.Error(err))
	}
}

// OnClear keeps the archive; only the live transcript is cleared.
func (s *sessionArchive) OnClear() {}
