package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is the persisted form of a session: one row per
// (channel, user) key plus its ordered messages.
type Record struct {
	ID        string
	Channel   string
	User      string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a SQLite-backed session store.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) the session database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		user TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(channel, user)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load fetches the record for (channel, user), or nil if none exists.
func (s *Store) Load(ctx context.Context, channel, user string) (*Record, error) {
	rec := &Record{Channel: channel, User: user}

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at FROM sessions
		WHERE channel = ? AND user = ?
	`, channel, user).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp FROM messages
		WHERE session_id = ?
		ORDER BY timestamp, id
	`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Messages = append(rec.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return rec, nil
}

// Create persists a new empty session record.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (id, channel, user, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Channel, rec.User, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// AppendMessage persists one message and bumps the session's
// updated_at timestamp.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, m Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), sessionID, m.Role, m.Content, m.Timestamp); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE id = ?
	`, m.Timestamp, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}
