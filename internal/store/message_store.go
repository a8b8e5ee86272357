package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/mail-responder/internal/model"
)

const messageColumns = `id, user_id, mailbox_id, mailbox_address, nickname,
	message_id, subject, body, from_address, from_name,
	reply_body, summary, status,
	received_at, draft_saved_at, sent_at, send_error,
	created_at, updated_at`

// InsertMessageIfAbsent inserts the message unless one already exists
// for the same (mailbox_id, message_id). Existing rows are left
// completely untouched, so repeated syncs are cheap no-ops. It reports
// whether a new row was created.
func (s *SQLiteStore) InsertMessageIfAbsent(ctx context.Context, m model.Message) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = model.StatusUnread
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, user_id, mailbox_id, mailbox_address, nickname,
			message_id, subject, body, from_address, from_name,
			status, received_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mailbox_id, message_id) DO NOTHING`,
		m.ID, m.UserID, m.MailboxID, m.MailboxAddress, m.Nickname,
		m.MessageID, m.Subject, m.Body, m.FromAddress, m.FromName,
		string(m.Status), m.ReceivedAt.UTC(), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("inserting message %s: %w", m.MessageID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting message %s: %w", m.MessageID, err)
	}

	return affected > 0, nil
}

// GetMessage retrieves a single message owned by the user.
func (s *SQLiteStore) GetMessage(ctx context.Context, id, userID string) (*model.Message, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = ? AND user_id = ?",
		id, userID,
	)

	m, err := scanMessageRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	return &m, nil
}

// ListMessages retrieves messages matching the filter, newest first,
// along with the total count before pagination.
func (s *SQLiteStore) ListMessages(
	ctx context.Context,
	userID string,
	f MessageFilter,
) ([]model.Message, int, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{userID}

	switch {
	case f.Status != nil:
		conditions = append(conditions, "status = ?")
		args = append(args, string(*f.Status))
	case f.ExceptResponded:
		conditions = append(conditions, "status != ?")
		args = append(args, string(model.StatusReadResponded))
	}

	if f.MailboxID != "" {
		conditions = append(conditions, "mailbox_id = ?")
		args = append(args, f.MailboxID)
	}
	if f.Search != "" {
		conditions = append(conditions,
			"(subject LIKE ? OR body LIKE ? OR mailbox_address LIKE ? OR nickname LIKE ?)")
		q := "%" + f.Search + "%"
		args = append(args, q, q, q, q)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM messages"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	query := "SELECT " + messageColumns + " FROM messages" + where + " ORDER BY received_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}

	return messages, total, rows.Err()
}

// CountMessages returns per-status message totals plus the number of
// active mailboxes, for the dashboard cards.
func (s *SQLiteStore) CountMessages(ctx context.Context, userID string) (StatusCounts, error) {
	var counts StatusCounts

	rows, err := s.db.QueryxContext(ctx,
		"SELECT status, COUNT(*) FROM messages WHERE user_id = ? GROUP BY status",
		userID,
	)
	if err != nil {
		return counts, fmt.Errorf("counting messages by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scanning status count: %w", err)
		}
		switch model.MessageStatus(status) {
		case model.StatusUnread:
			counts.Unread = n
		case model.StatusDraftSaved:
			counts.DraftSaved = n
		case model.StatusReadResponded:
			counts.ReadResponded = n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, err
	}

	err = s.db.GetContext(ctx, &counts.ActiveMailboxes,
		"SELECT COUNT(*) FROM mailboxes WHERE user_id = ? AND is_active = 1 AND is_deleted = 0",
		userID,
	)
	if err != nil {
		return counts, fmt.Errorf("counting active mailboxes: %w", err)
	}

	return counts, nil
}

// SaveDraft stores the reply body and moves the message to DraftSaved.
// Terminal messages are left untouched; the return value reports
// whether the draft was actually saved.
func (s *SQLiteStore) SaveDraft(
	ctx context.Context,
	id, userID, body string,
	at time.Time,
) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET reply_body = ?, status = ?, draft_saved_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status != ?`,
		body, string(model.StatusDraftSaved), at.UTC(), time.Now().UTC(),
		id, userID, string(model.StatusReadResponded),
	)
	if err != nil {
		return false, fmt.Errorf("saving draft for message %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("saving draft for message %s: %w", id, err)
	}

	return affected > 0, nil
}

// SetSummary stores the generated summary on the message.
func (s *SQLiteStore) SetSummary(ctx context.Context, id, userID, summary string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET summary = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		summary, time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("setting summary for message %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting summary for message %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkResponded moves the message into the terminal ReadResponded
// status, stamps the sent time, and clears any previous send error.
func (s *SQLiteStore) MarkResponded(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = ?, sent_at = ?, send_error = '', updated_at = ?
		WHERE id = ?`,
		string(model.StatusReadResponded), at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking message %s responded: %w", id, err)
	}
	return nil
}

// SetSendError records a failed send attempt. The status is left
// unchanged so the message stays eligible for another attempt.
func (s *SQLiteStore) SetSendError(ctx context.Context, id, sendErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET send_error = ?, updated_at = ?
		WHERE id = ?`,
		sendErr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording send error for message %s: %w", id, err)
	}
	return nil
}

// scanMessage scans a message row from a sqlx.Rows result set.
func scanMessage(rows *sqlx.Rows) (model.Message, error) {
	return scanMessageFields(rows.Scan)
}

// scanMessageRow scans a single message row from a sqlx.Row.
func scanMessageRow(row *sqlx.Row) (model.Message, error) {
	return scanMessageFields(row.Scan)
}

func scanMessageFields(scan func(dest ...interface{}) error) (model.Message, error) {
	var (
		m            model.Message
		status       string
		draftSavedAt sql.NullTime
		sentAt       sql.NullTime
	)

	err := scan(
		&m.ID, &m.UserID, &m.MailboxID, &m.MailboxAddress, &m.Nickname,
		&m.MessageID, &m.Subject, &m.Body, &m.FromAddress, &m.FromName,
		&m.ReplyBody, &m.Summary, &status,
		&m.ReceivedAt, &draftSavedAt, &sentAt, &m.SendError,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, err
	}

	m.Status = model.MessageStatus(status)
	if draftSavedAt.Valid {
		t := draftSavedAt.Time
		m.DraftSavedAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}

	return m, nil
}
