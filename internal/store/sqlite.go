package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// SQLiteStore implements Store on an SQLite database.
type SQLiteStore struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway and this keeps
	// the read-max-then-insert in Append free of races.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id                     TEXT PRIMARY KEY,
		participant_id         TEXT NOT NULL,
		status                 TEXT NOT NULL,
		assigned_specialist_id TEXT NOT NULL DEFAULT '',
		last_sequence          INTEGER NOT NULL DEFAULT 0,
		created_at             INTEGER NOT NULL,
		last_activity_at       INTEGER NOT NULL,
		ended_at               INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sequence        INTEGER NOT NULL,
		sender_type     TEXT NOT NULL,
		sender_id       TEXT NOT NULL DEFAULT '',
		sender_name     TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		read            INTEGER NOT NULL DEFAULT 0,
		UNIQUE (conversation_id, sequence)
	);

	CREATE TABLE IF NOT EXISTS handoff_requests (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		requested_at    INTEGER NOT NULL,
		resolved_at     INTEGER,
		resolution      TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_handoff_open ON handoff_requests(conversation_id) WHERE resolved_at IS NULL;

	CREATE TABLE IF NOT EXISTS feedback (
		conversation_id TEXT PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
		rating          INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment         TEXT NOT NULL DEFAULT '',
		specialist_id   TEXT NOT NULL DEFAULT '',
		submitted_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id             TEXT PRIMARY KEY,
		recipient_id   TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		message        TEXT NOT NULL DEFAULT '',
		type           TEXT NOT NULL DEFAULT '',
		priority       TEXT NOT NULL,
		action_url     TEXT NOT NULL DEFAULT '',
		icon           TEXT NOT NULL DEFAULT '',
		color          TEXT NOT NULL DEFAULT '',
		metadata       TEXT NOT NULL DEFAULT '{}',
		created_at     INTEGER NOT NULL,
		expires_at     INTEGER,
		read           INTEGER NOT NULL DEFAULT 0,
		read_at        INTEGER,
		email_sent     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithinTx runs fn on a store bound to one transaction. Nested calls join
// the outer transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.atomically(ctx, func(q querier) error {
		return fn(&SQLiteStore{db: s.db, q: q, tx: q.(*sql.Tx)})
	})
}

// atomically runs fn inside the current transaction, or a new one.
func (s *SQLiteStore) atomically(ctx context.Context, fn func(q querier) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_id, status, assigned_specialist_id, last_sequence, created_at, last_activity_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.ParticipantID, string(conv.Status), conv.AssignedSpecialistID, conv.LastSequence,
		toUnix(conv.CreatedAt), toUnix(conv.LastActivityAt), toNullUnix(conv.EndedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: conversation %s already exists", model.ErrPreconditionFailed, conv.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, participant_id, status, assigned_specialist_id, last_sequence, created_at, last_activity_at, ended_at`

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE conversations
		SET status = ?, assigned_specialist_id = ?, last_sequence = ?, last_activity_at = ?, ended_at = ?
		WHERE id = ?`,
		string(conv.Status), conv.AssignedSpecialistID, conv.LastSequence,
		toUnix(conv.LastActivityAt), toNullUnix(conv.EndedAt), conv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: conversation %s", model.ErrNotFound, conv.ID)
	}
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, msg *model.Message) error {
	return s.atomically(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, msg.ConversationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: conversation %s", model.ErrNotFound, msg.ConversationID)
		}
		if err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}

		var last uint64
		if err := q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) FROM messages WHERE conversation_id = ?`, msg.ConversationID,
		).Scan(&last); err != nil {
			return fmt.Errorf("failed to read last sequence: %w", err)
		}

		next := last + 1
		_, err = q.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sequence, sender_type, sender_id, sender_name, content, created_at, read)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, next, string(msg.SenderType), msg.SenderID, msg.SenderName,
			msg.Content, toUnix(msg.CreatedAt), boolToInt(msg.Read),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		msg.Sequence = next
		return nil
	})
}

func (s *SQLiteStore) Since(ctx context.Context, conversationID string, since uint64, limit int) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, sequence, sender_type, sender_id, sender_name, content, created_at, read
		FROM messages
		WHERE conversation_id = ? AND sequence > ?
		ORDER BY sequence ASC`
	args := []any{conversationID, since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var (
			msg        model.Message
			senderType string
			createdAt  int64
			read       int
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sequence, &senderType, &msg.SenderID,
			&msg.SenderName, &msg.Content, &createdAt, &read); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SenderType = model.SenderType(senderType)
		msg.CreatedAt = fromUnix(createdAt)
		msg.Read = read != 0
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) LastSequence(ctx context.Context, conversationID string) (uint64, error) {
	var last uint64
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return last, nil
}

func (s *SQLiteStore) CreateHandoff(ctx context.Context, req *model.HandoffRequest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO handoff_requests (id, conversation_id, requested_at, resolved_at, resolution)
		VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.ConversationID, toUnix(req.RequestedAt), toNullUnix(req.ResolvedAt), string(req.Resolution),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: conversation %s already has an open handoff", model.ErrPreconditionFailed, req.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert handoff: %w", err)
	}
	return nil
}

const handoffColumns = `id, conversation_id, requested_at, resolved_at, resolution`

func (s *SQLiteStore) OpenHandoff(ctx context.Context, conversationID string) (*model.HandoffRequest, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+handoffColumns+` FROM handoff_requests WHERE conversation_id = ? AND resolved_at IS NULL`, conversationID)
	req, err := scanHandoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: open handoff for %s", model.ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query handoff: %w", err)
	}
	return req, nil
}

func (s *SQLiteStore) ResolveHandoff(ctx context.Context, conversationID string, resolution model.HandoffResolution, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE handoff_requests SET resolved_at = ?, resolution = ?
		WHERE conversation_id = ? AND resolved_at IS NULL`,
		toUnix(at), string(resolution), conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve handoff: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: open handoff for %s", model.ErrNotFound, conversationID)
	}
	return nil
}

func (s *SQLiteStore) ListHandoffs(ctx context.Context, conversationID string) ([]model.HandoffRequest, error) {
	return s.queryHandoffs(ctx,
		`SELECT `+handoffColumns+` FROM handoff_requests WHERE conversation_id = ? ORDER BY requested_at ASC`, conversationID)
}

func (s *SQLiteStore) StaleHandoffs(ctx context.Context, cutoff time.Time) ([]model.HandoffRequest, error) {
	return s.queryHandoffs(ctx,
		`SELECT `+handoffColumns+` FROM handoff_requests WHERE resolved_at IS NULL AND requested_at < ? ORDER BY requested_at ASC`,
		toUnix(cutoff))
}

func (s *SQLiteStore) queryHandoffs(ctx context.Context, query string, args ...any) ([]model.HandoffRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query handoffs: %w", err)
	}
	defer rows.Close()

	var out []model.HandoffRequest
	for rows.Next() {
		req, err := scanHandoff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan handoff: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO feedback (conversation_id, rating, comment, specialist_id, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		fb.ConversationID, fb.Rating, fb.Comment, fb.SpecialistID, toUnix(fb.SubmittedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: feedback already submitted for %s", model.ErrPreconditionFailed, fb.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFeedback(ctx context.Context, conversationID string) (*model.Feedback, error) {
	var (
		fb          model.Feedback
		submittedAt int64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT conversation_id, rating, comment, specialist_id, submitted_at
		FROM feedback WHERE conversation_id = ?`, conversationID,
	).Scan(&fb.ConversationID, &fb.Rating, &fb.Comment, &fb.SpecialistID, &submittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: feedback for %s", model.ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	fb.SubmittedAt = fromUnix(submittedAt)
	return &fb, nil
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, recipient_type, title, message, type, priority, action_url,
			icon, color, metadata, created_at, expires_at, read, read_at, email_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, string(n.RecipientType), n.Title, n.Message, n.Type, string(n.Priority), n.ActionURL,
		n.Icon, n.Color, string(metadata), toUnix(n.CreatedAt), toNullUnix(n.ExpiresAt),
		boolToInt(n.Read), toNullUnix(n.ReadAt), boolToInt(n.EmailSent),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

const notificationColumns = `id, recipient_id, recipient_type, title, message, type, priority, action_url,
	icon, color, metadata, created_at, expires_at, read, read_at, email_sent`

func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: notification %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query notification: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetEmailSent(ctx context.Context, id string, sent bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE notifications SET email_sent = ? WHERE id = ?`, boolToInt(sent), id)
	if err != nil {
		return fmt.Errorf("failed to update email status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: notification %s", model.ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, now time.Time) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = ? AND (expires_at IS NULL OR expires_at > ?)`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.QueryContext(ctx, query, recipientID, toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`, toUnix(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: notification %s", model.ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = ? WHERE recipient_id = ? AND read = 0`, toUnix(at), recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?`, toUnix(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		conv                      model.Conversation
		status                    string
		createdAt, lastActivityAt int64
		endedAt                   sql.NullInt64
	)
	if err := row.Scan(&conv.ID, &conv.ParticipantID, &status, &conv.AssignedSpecialistID, &conv.LastSequence,
		&createdAt, &lastActivityAt, &endedAt); err != nil {
		return nil, err
	}
	conv.Status = model.ConversationStatus(status)
	conv.CreatedAt = fromUnix(createdAt)
	conv.LastActivityAt = fromUnix(lastActivityAt)
	conv.EndedAt = fromNullUnix(endedAt)
	return &conv, nil
}

func scanHandoff(row scanner) (*model.HandoffRequest, error) {
	var (
		req         model.HandoffRequest
		requestedAt int64
		resolvedAt  sql.NullInt64
		resolution  string
	)
	if err := row.Scan(&req.ID, &req.ConversationID, &requestedAt, &resolvedAt, &resolution); err != nil {
		return nil, err
	}
	req.RequestedAt = fromUnix(requestedAt)
	req.ResolvedAt = fromNullUnix(resolvedAt)
	req.Resolution = model.HandoffResolution(resolution)
	return &req, nil
}

func scanNotification(row scanner) (*model.Notification, error) {
	var (
		n                                model.Notification
		recipientType, priority, rawMeta string
		createdAt                        int64
		expiresAt, readAt                sql.NullInt64
		read, emailSent                  int
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &recipientType, &n.Title, &n.Message, &n.Type, &priority,
		&n.ActionURL, &n.Icon, &n.Color, &rawMeta, &createdAt, &expiresAt, &read, &readAt, &emailSent); err != nil {
		return nil, err
	}
	n.RecipientType = model.RecipientType(recipientType)
	n.Priority = model.Priority(priority)
	if rawMeta != "" && rawMeta != "null" {
		if err := json.Unmarshal([]byte(rawMeta), &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	n.CreatedAt = fromUnix(createdAt)
	n.ExpiresAt = fromNullUnix(expiresAt)
	n.Read = read != 0
	n.ReadAt = fromNullUnix(readAt)
	n.EmailSent = emailSent != 0
	return &n, nil
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
