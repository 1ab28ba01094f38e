package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRequest persists a new request and returns its assigned id. Text
// fields are trimmed; no further validation happens here, incomplete
// submissions are accepted by design.
func (s *PostgresStore) CreateRequest(ctx context.Context, req Request) (int64, error) {
	const insert = `
		INSERT INTO requests (submitter, phone, email, organization, branch, device, problem, comment, chat_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	createdAt := time.Now().UTC().Truncate(time.Second)

	var id int64
	err := s.db.QueryRowContext(ctx, insert,
		strings.TrimSpace(req.Submitter),
		strings.TrimSpace(req.Phone),
		strings.TrimSpace(req.Email),
		strings.TrimSpace(req.Organization),
		strings.TrimSpace(req.Branch),
		strings.TrimSpace(req.Device),
		strings.TrimSpace(req.Problem),
		strings.TrimSpace(req.Comment),
		strings.TrimSpace(req.ChatID),
		createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

// ListActiveRequests returns all non-deleted requests, newest first.
func (s *PostgresStore) ListActiveRequests(ctx context.Context) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submitter, phone, email, organization, branch, device, problem, comment, chat_id, created_at
		FROM requests
		WHERE NOT deleted
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]Request, 0)
	for rows.Next() {
		var item Request
		if err := rows.Scan(
			&item.ID, &item.Submitter, &item.Phone, &item.Email, &item.Organization,
			&item.Branch, &item.Device, &item.Problem, &item.Comment, &item.ChatID,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

// SoftDeleteRequest marks a request deleted. Deleting an absent or
// already-deleted request is a no-op, which keeps client retries cheap.
func (s *PostgresStore) SoftDeleteRequest(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE requests SET deleted = TRUE WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return fmt.Errorf("soft delete request %d: %w", id, err)
	}
	return nil
}

// SoftDeleteRequestsByChat marks every active request for a chat identity
// deleted and returns the affected ids so secondary indexes can be
// reconciled. Same idempotency contract as SoftDeleteRequest.
func (s *PostgresStore) SoftDeleteRequestsByChat(ctx context.Context, chatID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `UPDATE requests SET deleted = TRUE WHERE chat_id = $1 AND NOT deleted RETURNING id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("soft delete requests for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted request id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted request ids: %w", err)
	}
	return ids, nil
}

// RequestChatID resolves the chat identity of an active request. Deleted
// and absent requests both surface sql.ErrNoRows: replying to either is
// refused upstream with a not-found signal.
func (s *PostgresStore) RequestChatID(ctx context.Context, id int64) (string, error) {
	var chatID string
	err := s.db.QueryRowContext(ctx, `SELECT chat_id FROM requests WHERE id = $1 AND NOT deleted`, id).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("lookup request %d chat: %w", id, err)
	}
	return chatID, nil
}

// InsertReply appends an operator reply. Replies are immutable history;
// there is no update or delete path.
func (s *PostgresStore) InsertReply(ctx context.Context, requestID int64, chatID, text string) (int64, error) {
	const insert = `
		INSERT INTO replies (request_id, chat_id, reply, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	createdAt := time.Now().UTC().Truncate(time.Second)

	var id int64
	err := s.db.QueryRowContext(ctx, insert, requestID, chatID, text, createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reply: %w", err)
	}
	return id, nil
}

// ListRepliesForChat returns every reply addressed to a chat identity,
// most recent first, across all of that chat's requests. Replies to
// since-deleted requests remain retrievable.
func (s *PostgresStore) ListRepliesForChat(ctx context.Context, chatID string) ([]Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, chat_id, reply, created_at
		FROM replies
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	items := make([]Reply, 0)
	for rows.Next() {
		var item Reply
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ChatID, &item.Text, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}
