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

const mailboxColumns = `id, user_id, address, nickname, secret_enc,
	is_active, is_verified, is_deleted,
	last_sync_at, last_sync_status, last_sync_error,
	created_at, updated_at`

// CreateMailbox inserts a new mailbox. The address is lowercased, and
// at most one non-deleted mailbox may exist per (user, address).
func (s *SQLiteStore) CreateMailbox(ctx context.Context, mb model.Mailbox) error {
	if mb.ID == "" {
		mb.ID = uuid.New().String()
	}
	address := strings.ToLower(strings.TrimSpace(mb.Address))

	var existing int
	err := s.db.GetContext(ctx, &existing,
		"SELECT COUNT(*) FROM mailboxes WHERE user_id = ? AND address = ? AND is_deleted = 0",
		mb.UserID, address,
	)
	if err != nil {
		return fmt.Errorf("checking for duplicate mailbox: %w", err)
	}
	if existing > 0 {
		return ErrDuplicateMailbox
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (
			id, user_id, address, nickname, secret_enc,
			is_active, is_verified, is_deleted,
			last_sync_status, last_sync_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', '', ?, ?)`,
		mb.ID, mb.UserID, address, mb.Nickname, mb.SecretEnc,
		boolToInt(mb.IsActive), boolToInt(mb.IsVerified),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting mailbox %s: %w", address, err)
	}

	return nil
}

// GetMailbox retrieves a single non-deleted mailbox owned by the user.
func (s *SQLiteStore) GetMailbox(ctx context.Context, id, userID string) (*model.Mailbox, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+mailboxColumns+" FROM mailboxes WHERE id = ? AND user_id = ? AND is_deleted = 0",
		id, userID,
	)

	mb, err := scanMailboxRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting mailbox %s: %w", id, err)
	}

	return &mb, nil
}

// GetSendableMailbox retrieves the mailbox only when it is owned by
// the user, active, and not soft-deleted.
func (s *SQLiteStore) GetSendableMailbox(ctx context.Context, id, userID string) (*model.Mailbox, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+mailboxColumns+` FROM mailboxes
		 WHERE id = ? AND user_id = ? AND is_active = 1 AND is_deleted = 0`,
		id, userID,
	)

	mb, err := scanMailboxRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting sendable mailbox %s: %w", id, err)
	}

	return &mb, nil
}

// ListActiveMailboxes returns every active, non-deleted mailbox for
// the user.
func (s *SQLiteStore) ListActiveMailboxes(ctx context.Context, userID string) ([]model.Mailbox, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+mailboxColumns+` FROM mailboxes
		 WHERE user_id = ? AND is_active = 1 AND is_deleted = 0`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying active mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []model.Mailbox
	for rows.Next() {
		mb, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, mb)
	}

	return mailboxes, rows.Err()
}

// ListMailboxes retrieves non-deleted mailboxes matching the filter,
// along with the total count before pagination.
func (s *SQLiteStore) ListMailboxes(
	ctx context.Context,
	userID string,
	f MailboxFilter,
) ([]model.Mailbox, int, error) {
	conditions := []string{"user_id = ?", "is_deleted = 0"}
	args := []interface{}{userID}

	if f.Active != nil {
		conditions = append(conditions, "is_active = ?")
		args = append(args, boolToInt(*f.Active))
	}
	if f.Search != "" {
		conditions = append(conditions, "(nickname LIKE ? OR address LIKE ?)")
		q := "%" + f.Search + "%"
		args = append(args, q, q)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM mailboxes"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting mailboxes: %w", err)
	}

	sortBy := "updated_at"
	allowedSorts := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"last_sync_at": true,
		"nickname":     true,
		"address":      true,
	}
	if allowedSorts[f.SortBy] {
		sortBy = f.SortBy
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := "SELECT " + mailboxColumns + " FROM mailboxes" + where +
		fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []model.Mailbox
	for rows.Next() {
		mb, err := scanMailbox(rows)
		if err != nil {
			return nil, 0, err
		}
		mailboxes = append(mailboxes, mb)
	}

	return mailboxes, total, rows.Err()
}

// UpdateMailbox updates the user-editable fields of a mailbox.
func (s *SQLiteStore) UpdateMailbox(ctx context.Context, mb model.Mailbox) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mailboxes
		SET address = ?, nickname = ?, secret_enc = ?,
		    is_active = ?, is_verified = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = 0`,
		strings.ToLower(strings.TrimSpace(mb.Address)), mb.Nickname, mb.SecretEnc,
		boolToInt(mb.IsActive), boolToInt(mb.IsVerified), time.Now().UTC(),
		mb.ID, mb.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating mailbox %s: %w", mb.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating mailbox %s: %w", mb.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// SoftDeleteMailbox marks the mailbox deleted. The row is kept; sync
// and send skip deleted mailboxes.
func (s *SQLiteStore) SoftDeleteMailbox(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mailboxes
		SET is_deleted = 1, is_active = 0, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = 0`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting mailbox %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft-deleting mailbox %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// RecordSyncResult stamps the most recent sync attempt on the mailbox.
func (s *SQLiteStore) RecordSyncResult(
	ctx context.Context,
	id string,
	at time.Time,
	status, syncErr string,
) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mailboxes
		SET last_sync_at = ?, last_sync_status = ?, last_sync_error = ?, updated_at = ?
		WHERE id = ?`,
		at.UTC(), status, syncErr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording sync result for mailbox %s: %w", id, err)
	}
	return nil
}

// ListSyncUserIDs returns the distinct user ids owning at least one
// active, non-deleted mailbox.
func (s *SQLiteStore) ListSyncUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	err := s.db.SelectContext(ctx, &userIDs,
		"SELECT DISTINCT user_id FROM mailboxes WHERE is_active = 1 AND is_deleted = 0",
	)
	if err != nil {
		return nil, fmt.Errorf("listing sync user ids: %w", err)
	}
	return userIDs, nil
}

// scanMailbox scans a mailbox row from a sqlx.Rows result set.
func scanMailbox(rows *sqlx.Rows) (model.Mailbox, error) {
	return scanMailboxFields(rows.Scan)
}

// scanMailboxRow scans a single mailbox row from a sqlx.Row.
func scanMailboxRow(row *sqlx.Row) (model.Mailbox, error) {
	return scanMailboxFields(row.Scan)
}

func scanMailboxFields(scan func(dest ...interface{}) error) (model.Mailbox, error) {
	var (
		mb         model.Mailbox
		isActive   int
		isVerified int
		isDeleted  int
		lastSyncAt sql.NullTime
	)

	err := scan(
		&mb.ID, &mb.UserID, &mb.Address, &mb.Nickname, &mb.SecretEnc,
		&isActive, &isVerified, &isDeleted,
		&lastSyncAt, &mb.LastSyncStatus, &mb.LastSyncError,
		&mb.CreatedAt, &mb.UpdatedAt,
	)
	if err != nil {
		return model.Mailbox{}, err
	}

	mb.IsActive = isActive != 0
	mb.IsVerified = isVerified != 0
	mb.IsDeleted = isDeleted != 0
	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		mb.LastSyncAt = &t
	}

	return mb, nil
}
