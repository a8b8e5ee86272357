package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mail-responder/internal/model"
)

// ErrNotFound is returned when a record does not exist or is not owned
// by the requesting user.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateMailbox is returned when a non-deleted mailbox already
// exists for the same (user, address) pair.
var ErrDuplicateMailbox = errors.New("mailbox already exists for this address")

// MailboxFilter controls filtering, sorting, and pagination for
// mailbox listings.
type MailboxFilter struct {
	Active   *bool
	Search   string // matches nickname or address
	SortBy   string // "created_at", "updated_at", "last_sync_at", "nickname", "address"
	SortDesc bool
	Limit    int
	Offset   int
}

// MessageFilter controls filtering and pagination for message listings.
type MessageFilter struct {
	Status          *model.MessageStatus
	ExceptResponded bool // exclude terminal messages; ignored when Status is set
	MailboxID       string
	Search          string // matches subject, body, mailbox address, nickname
	Limit           int
	Offset          int
}

// StatusCounts holds per-status message totals for dashboard cards.
type StatusCounts struct {
	Unread          int
	DraftSaved      int
	ReadResponded   int
	ActiveMailboxes int
}

// MailboxStore is the persistence contract for the mailbox directory.
type MailboxStore interface {
	CreateMailbox(ctx context.Context, mb model.Mailbox) error
	GetMailbox(ctx context.Context, id, userID string) (*model.Mailbox, error)

	// GetSendableMailbox returns the mailbox only when it is active
	// and not soft-deleted.
	GetSendableMailbox(ctx context.Context, id, userID string) (*model.Mailbox, error)

	// ListActiveMailboxes returns every mailbox with is_active=1 and
	// is_deleted=0 for the user, in unspecified order.
	ListActiveMailboxes(ctx context.Context, userID string) ([]model.Mailbox, error)

	ListMailboxes(ctx context.Context, userID string, f MailboxFilter) ([]model.Mailbox, int, error)
	UpdateMailbox(ctx context.Context, mb model.Mailbox) error
	SoftDeleteMailbox(ctx context.Context, id, userID string) error

	// RecordSyncResult stamps the outcome of a sync attempt. It is
	// written whether the attempt succeeded or failed.
	RecordSyncResult(ctx context.Context, id string, at time.Time, status, syncErr string) error

	// ListSyncUserIDs returns the distinct user ids that have at
	// least one active, non-deleted mailbox.
	ListSyncUserIDs(ctx context.Context) ([]string, error)
}

// MessageStore is the persistence contract for ingested messages.
type MessageStore interface {
	// InsertMessageIfAbsent inserts the message unless a row already
	// exists for (mailbox_id, message_id). It reports whether a new
	// row was actually created; an existing row is never modified.
	InsertMessageIfAbsent(ctx context.Context, m model.Message) (bool, error)

	GetMessage(ctx context.Context, id, userID string) (*model.Message, error)
	ListMessages(ctx context.Context, userID string, f MessageFilter) ([]model.Message, int, error)
	CountMessages(ctx context.Context, userID string) (StatusCounts, error)

	// SaveDraft stores a reply draft and moves the message to
	// DraftSaved unless it is already terminal. It reports whether
	// any row was updated.
	SaveDraft(ctx context.Context, id, userID, body string, at time.Time) (bool, error)

	SetSummary(ctx context.Context, id, userID, summary string) error

	// MarkResponded is the sole transition into the terminal status:
	// it sets ReadResponded, stamps sent_at, and clears send_error.
	MarkResponded(ctx context.Context, id string, at time.Time) error

	// SetSendError records a failed send attempt without touching the
	// message status, keeping the message eligible for retry.
	SetSendError(ctx context.Context, id, sendErr string) error
}

// JobStore is the persistence contract for bulk jobs. The job record
// is the only state shared between the accept endpoint and the worker,
// so every counter update must be atomic.
type JobStore interface {
	CreateJob(ctx context.Context, job model.BulkJob) error
	GetJob(ctx context.Context, id, userID string) (*model.BulkJob, error)
	GetJobResults(ctx context.Context, id string) ([]model.JobResult, error)
	MarkJobRunning(ctx context.Context, id string) error

	// AppendJobResult records one processed item: it bumps
	// processed/success/failed and appends the per-item result in a
	// single transaction, so pollers never observe a partial update.
	AppendJobResult(ctx context.Context, id string, seq int, res model.JobResult) error

	MarkJobDone(ctx context.Context, id string) error
	MarkJobFailed(ctx context.Context, id, jobErr string) error
}

// Store is the full persistence interface backing the service.
type Store interface {
	MailboxStore
	MessageStore
	JobStore

	Close() error
}
