// Package history provides SQLite-based persistence for agent sessions so a
// later run can continue where the previous one stopped.
// If opening the DB or executing queries fails, the store falls back to
// in-memory storage for the lifetime of the process.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/comigor/bueller-go/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	issue TEXT,
	role TEXT,
	content TEXT,
	payload TEXT,
	created_at DATETIME
);
CREATE INDEX IF NOT EXISTS messages_session ON messages (session_id, id);`

// Store keeps session messages in SQLite when available and always keeps an
// in-memory copy as fallback.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	messages []Message
	nextID   int64
}

// Open opens (or creates) the database at path. An empty path, or any failure
// to open it, yields a memory-only store.
func Open(ctx context.Context, path string) *Store {
	s := &Store{}
	if path == "" {
		return s
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.L.Warn("history directory unavailable; using in-memory history", "error", err)
		return s
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
		return s
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		logger.L.Warn("sqlite table creation failed; using in-memory history", "error", err)
		db.Close()
		return s
	}
	logger.L.Debug("sqlite history DB initialized", "path", path)
	s.db = db
	return s
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewSession returns a fresh session identifier.
func (s *Store) NewSession() string {
	return uuid.NewString()
}

// Save persists msg. CreatedAt defaults to now.
func (s *Store) Save(ctx context.Context, msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if s.db != nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO messages (session_id, issue, role, content, payload, created_at) VALUES (?,?,?,?,?,?);`,
			msg.SessionID, msg.Issue, msg.Role, msg.Content, msg.Payload, msg.CreatedAt)
		if err != nil {
			logger.L.Error("failed to store message in sqlite; falling back to memory", "error", err)
		}
	}

	s.mu.Lock()
	s.nextID++
	msg.ID = s.nextID
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// List returns all messages of a session in chronological order.
func (s *Store) List(ctx context.Context, sessionID string) []Message {
	if s.db != nil {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, session_id, issue, role, content, payload, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`,
			sessionID)
		if err == nil {
			defer rows.Close()
			var out []Message
			for rows.Next() {
				var m Message
				if err := rows.Scan(&m.ID, &m.SessionID, &m.Issue, &m.Role, &m.Content, &m.Payload, &m.CreatedAt); err != nil {
					logger.L.Warn("skipping unreadable history row", "session", sessionID, "error", err)
					continue
				}
				out = append(out, m)
			}
			if err := rows.Err(); err != nil {
				logger.L.Warn("sqlite history read stopped early", "session", sessionID, "read", len(out), "error", err)
			}
			return out
		}
		logger.L.Warn("sqlite query failed; reading in-memory history", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// LatestSession returns the session that received the most recent message.
func (s *Store) LatestSession(ctx context.Context) (string, bool) {
	if s.db != nil {
		var sessionID string
		err := s.db.QueryRowContext(ctx, `SELECT session_id FROM messages ORDER BY id DESC LIMIT 1;`).Scan(&sessionID)
		if err == nil {
			return sessionID, true
		}
		if err != sql.ErrNoRows {
			logger.L.Warn("sqlite query failed; reading in-memory history", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return "", false
	}
	return s.messages[len(s.messages)-1].SessionID, true
}
