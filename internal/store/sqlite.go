// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with a fixed-width nanosecond fraction so that
// stored timestamps compare lexicographically in chronological order.
// MAX() and ORDER BY on the timestamp column rely on this.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Pass ":memory:" for an
// in-memory database (used in tests).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// The pragmas ride in the DSN so every connection the pool opens gets
	// them, not just the one that would run a PRAGMA statement.
	// _txlock=immediate makes transactions take the write lock up front;
	// a deferred read-then-write transaction can fail its lock upgrade
	// with SQLITE_BUSY no matter how long the busy timeout is.
	dsn := "file:" + path + "?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would see its own private
	// database, so pin the pool to a single connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS user_profiles (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL UNIQUE,
			preferences TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES user_profiles(id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id, created_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			timestamp       TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_ts
			ON messages(conversation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetUser retrieves a user profile by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, email, preferences, created_at
		FROM user_profiles
		WHERE id = ?
	`

	var user User
	var prefsJSON, createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&prefsJSON,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if err := json.Unmarshal([]byte(prefsJSON), &user.Preferences); err != nil {
		return nil, fmt.Errorf("parsing preferences: %w", err)
	}
	user.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// CreateUser inserts a new user profile.
// Returns ErrConflict if the ID or email is already taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, id, name, email string) (*User, error) {
	if id == "" || name == "" || email == "" {
		return nil, fmt.Errorf("%w: id, name, and email are required", ErrValidation)
	}

	user := &User{
		ID:          id,
		Name:        name,
		Email:       email,
		Preferences: map[string]string{},
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO user_profiles (id, name, email, preferences, created_at)
		VALUES (?, ?, ?, '{}', ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: user id or email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "email", user.Email)
	return user, nil
}

// SetPreference writes a single key into the user's preference map.
// The read-modify-write runs inside a transaction so concurrent updates
// to different keys don't overwrite each other.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetPreference(ctx context.Context, userID, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: preference key is required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var prefsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT preferences FROM user_profiles WHERE id = ?`, userID,
	).Scan(&prefsJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying preferences: %w", err)
	}

	prefs := map[string]string{}
	if err := json.Unmarshal([]byte(prefsJSON), &prefs); err != nil {
		return fmt.Errorf("parsing preferences: %w", err)
	}
	prefs[key] = value

	updated, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_profiles SET preferences = ? WHERE id = ?`, string(updated), userID,
	); err != nil {
		return fmt.Errorf("updating preferences: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing preference update: %w", err)
	}

	s.logger.Debug("stored preference", "user_id", userID, "key", key)
	return nil
}

// CreateConversation creates a new conversation owned by the given user.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM user_profiles WHERE id = ?`, userID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %q", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("checking user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, created_at) VALUES (?, ?, ?)`,
		conv.ID, conv.UserID, conv.CreatedAt.Format(timeLayout),
	); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_id", userID)
	return conv, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT id, user_id, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		var conv Conversation
		var createdAtStr string
		if err := rows.Scan(&conv.ID, &conv.UserID, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conv.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

// AppendMessage appends a message to a conversation. The timestamp is
// assigned inside the transaction and clamped to be >= the conversation's
// last message timestamp, so concurrent appends still produce a total order.
// Returns ErrNotFound if the conversation doesn't exist and ErrValidation
// for an unknown role or empty content.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: role must be %q or %q, got %q", ErrValidation, RoleUser, RoleAssistant, role)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ?`, conversationID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: conversation %q", ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}

	ts := time.Now().UTC()
	var lastStr sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&lastStr)
	if err != nil {
		return nil, fmt.Errorf("querying last timestamp: %w", err)
	}
	if lastStr.Valid {
		last, err := time.Parse(timeLayout, lastStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last timestamp: %w", err)
		}
		if ts.Before(last) {
			ts = last
		}
	}
	msg.Timestamp = ts

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Timestamp.Format(timeLayout),
	); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "conversation_id", conversationID, "role", role)
	return msg, nil
}

// GetHistory returns a conversation's messages in ascending timestamp order,
// ties broken by insertion order. An unknown conversation yields an empty
// slice, not an error.
func (s *SQLiteStore) GetHistory(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var tsStr string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Timestamp, err = time.Parse(timeLayout, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}
