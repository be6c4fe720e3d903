package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tradeloop/convocore/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to seed data after the schema is applied.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so collaborators (the directory adapter)
// can share the same connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Timestamps are stored as unix milliseconds so SQL comparisons are numeric.
func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ==== ConversationStore implementation ====

// FindOrCreateConversation returns the conversation for the unordered pair
// {idA, idB}, creating it if absent. The UNIQUE(pair_key) constraint plus
// ON CONFLICT DO NOTHING collapses concurrent creates from either argument
// order into a single row; the follow-up select reads whichever row won.
func (s *SQLiteStore) FindOrCreateConversation(ctx context.Context, idA, idB string) (*store.Conversation, error) {
	idA = strings.TrimSpace(idA)
	idB = strings.TrimSpace(idB)
	if idA == "" || idB == "" || idA == idB {
		return nil, store.ErrInvalidParticipants
	}

	now := millis(time.Now())
	key := store.PairKey(idA, idB)

	insert := `
		INSERT INTO conversations (id, pair_key, participant_a, participant_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, uuid.NewString(), key, idA, idB, now, now); err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}

	return s.getConversationByPairKey(ctx, key)
}

func scanConversation(row interface{ Scan(...any) error }) (*store.Conversation, error) {
	var (
		conv               store.Conversation
		createdMs, updated int64
	)
	if err := row.Scan(
		&conv.ID,
		&conv.PairKey,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&createdMs,
		&updated,
	); err != nil {
		return nil, err
	}
	conv.CreatedAt = fromMillis(createdMs)
	conv.UpdatedAt = fromMillis(updated)
	return &conv, nil
}

func (s *SQLiteStore) getConversationByPairKey(ctx context.Context, key string) (*store.Conversation, error) {
	query := `
		SELECT id, pair_key, participant_a, participant_b, created_at, updated_at
		FROM conversations
		WHERE pair_key = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConversationNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	return conv, nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `
		SELECT id, pair_key, participant_a, participant_b, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConversationNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	return conv, nil
}

// ListConversations returns all conversations where id is a participant,
// most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, id string) ([]*store.Conversation, error) {
	query := `
		SELECT id, pair_key, participant_a, participant_b, created_at, updated_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY updated_at DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, id, id)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// TouchConversation bumps updated_at to ts. An earlier ts is a no-op.
func (s *SQLiteStore) TouchConversation(ctx context.Context, conversationID string, ts time.Time) error {
	ms := millis(ts)
	query := `
		UPDATE conversations
		SET updated_at = ?
		WHERE id = ? AND updated_at < ?
	`
	result, err := s.db.ExecContext(ctx, query, ms, conversationID, ms)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the timestamp is stale (fine) or the conversation is gone.
		if _, err := s.GetConversation(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

// ==== MessageStore implementation ====

// AppendMessage validates the sender and content, then inserts the message
// with a created_at clamped to never precede the last one in the
// conversation. Insert and activity bump share one transaction so a
// half-appended message is never visible.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, store.ErrEmptyContent
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, store.ErrNotAParticipant
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Clamp created_at so ordering stays monotonic even if the wall clock
	// steps backward between sends. Messages in the same millisecond are
	// ordered by their autoincrement id.
	now := millis(time.Now())
	var last sql.NullInt64
	lastQuery := `
		SELECT created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	if err := tx.QueryRowContext(ctx, lastQuery, conversationID).Scan(&last); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query last message time: %w", err)
	}
	if last.Valid && now < last.Int64 {
		now = last.Int64
	}

	insert := `
		INSERT INTO messages (conversation_id, sender_id, content, created_at, is_read)
		VALUES (?, ?, ?, ?, 0)
	`
	result, err := tx.ExecContext(ctx, insert, conversationID, senderID, content, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	touch := `
		UPDATE conversations
		SET updated_at = ?
		WHERE id = ? AND updated_at < ?
	`
	if _, err := tx.ExecContext(ctx, touch, now, conversationID, now); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &store.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      fromMillis(now),
		IsRead:         false,
	}, nil
}

// ListMessages returns the full history of a conversation in send order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, asc bool) ([]*store.Message, error) {
	order := "DESC"
	if asc {
		order = "ASC"
	}
	query := `
		SELECT id, conversation_id, sender_id, content, created_at, is_read
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id ` + order

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg       store.Message
			createdMs int64
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Content,
			&createdMs,
			&msg.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = fromMillis(createdMs)
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// MarkRead flags every message in the conversation not sent by viewerID as read.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	query := `
		UPDATE messages
		SET is_read = 1
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, viewerID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// CountUnread returns the number of unread messages addressed to viewerID.
func (s *SQLiteStore) CountUnread(ctx context.Context, conversationID, viewerID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0
	`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, conversationID, viewerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
