// Package store provides the user directory and conversation store the
// chat manager reads from. The CRM owns these tables; the chat manager
// only ever reads them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/orchestra-mcp/chat/src/types"
)

// Schema is the subset of the CRM schema the store reads. EnsureSchema
// applies it for local development and tests.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (conversation_id, user_id)
);
`

// SQLStore reads users and conversation participants from a relational database.
type SQLStore struct {
	db *sql.DB
}

// Open opens a store with the given driver ("sqlite" or "pgx") and DSN.
func Open(driver, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps ":memory:" databases coherent.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an already opened database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the tables the store reads if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FindUserByID implements types.UserDirectory.
func (s *SQLStore) FindUserByID(ctx context.Context, id string) (types.UserRecord, error) {
	var u types.UserRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, password_hash FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return types.UserRecord{}, fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	if err != nil {
		return types.UserRecord{}, fmt.Errorf("query user %s: %w", id, err)
	}
	return u, nil
}

// FindConversationByID implements types.ConversationStore.
func (s *SQLStore) FindConversationByID(ctx context.Context, id string) (types.Conversation, error) {
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Conversation{}, fmt.Errorf("%w: %s", types.ErrConversationNotFound, id)
	}
	if err != nil {
		return types.Conversation{}, fmt.Errorf("query conversation %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return types.Conversation{}, fmt.Errorf("query participants %s: %w", id, err)
	}
	defer rows.Close()

	conv := types.Conversation{ID: found}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return types.Conversation{}, fmt.Errorf("scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return types.Conversation{}, fmt.Errorf("iterate participants: %w", err)
	}
	return conv, nil
}
