package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chats (
		chat_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_updated ON chats(updated_at);

	CREATE TABLE IF NOT EXISTS help_requests (
		request_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		status TEXT NOT NULL,
		answer TEXT,
		delivered INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_help_requests_session ON help_requests(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveChat creates or replaces a chat transcript.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat *domain.Chat) error {
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO chats (chat_id, title, messages_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			title = excluded.title,
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, chat.ID, chat.Title, string(messages), now, now); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat with its messages.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	query := `
		SELECT chat_id, title, messages_json, created_at, updated_at
		FROM chats WHERE chat_id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var chat domain.Chat
	var messagesJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&chat.ID, &chat.Title, &messagesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &chat.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	chat.CreatedAt = time.Unix(createdAt, 0)
	chat.UpdatedAt = time.Unix(updatedAt, 0)

	return &chat, nil
}

// ListChats returns chat summaries, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]domain.ChatSummary, error) {
	query := `SELECT chat_id, title FROM chats ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var summaries []domain.ChatSummary
	for rows.Next() {
		var summary domain.ChatSummary
		if err := rows.Scan(&summary.ID, &summary.Title); err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SaveHelpRequest creates or updates the audit record for a help request.
func (s *SQLiteStore) SaveHelpRequest(ctx context.Context, req *domain.HelpRequest) error {
	var resolvedAt sql.NullInt64
	if !req.ResolvedAt.IsZero() {
		resolvedAt = sql.NullInt64{Int64: req.ResolvedAt.Unix(), Valid: true}
	}

	query := `
		INSERT INTO help_requests (request_id, session_id, question, status, answer, delivered, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			status = excluded.status,
			answer = excluded.answer,
			delivered = excluded.delivered,
			resolved_at = excluded.resolved_at`

	_, err := s.db.ExecContext(ctx, query,
		req.ID, req.SessionID, req.Question, string(req.Status), req.Answer,
		boolToInt(req.Delivered), req.CreatedAt.Unix(), resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save help request: %w", err)
	}
	return nil
}

// ListHelpRequests returns all audited help requests, oldest first.
func (s *SQLiteStore) ListHelpRequests(ctx context.Context) ([]*domain.HelpRequest, error) {
	query := `
		SELECT request_id, session_id, question, status, answer, delivered, created_at, resolved_at
		FROM help_requests ORDER BY created_at ASC, request_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query help requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.HelpRequest
	for rows.Next() {
		var req domain.HelpRequest
		var status string
		var answer sql.NullString
		var delivered int
		var createdAt int64
		var resolvedAt sql.NullInt64

		if err := rows.Scan(&req.ID, &req.SessionID, &req.Question, &status, &answer, &delivered, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}

		req.Status = domain.HelpRequestStatus(status)
		req.Answer = answer.String
		req.Delivered = delivered != 0
		req.CreatedAt = time.Unix(createdAt, 0)
		if resolvedAt.Valid {
			req.ResolvedAt = time.Unix(resolvedAt.Int64, 0)
		}
		requests = append(requests, &req)
	}
	return requests, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
