package model

import "time"

// Outcome of the most recent sync attempt against a mailbox.
const (
	SyncStatusOK     = "OK"
	SyncStatusFailed = "FAILED"
)

// Mailbox is a configured external mail account the service polls and
// sends through. SecretEnc holds the mailbox app password encrypted as
// a vault envelope; the plaintext is never persisted and never returned
// to API callers.
type Mailbox struct {
	// ID is the unique identifier for this mailbox.
	ID string

	// UserID is the owner; every query against mailboxes is scoped by it.
	UserID string

	// Address is the mailbox email address, lowercased on the way in.
	Address string

	// Nickname is the user-defined label shown alongside messages.
	Nickname string

	// SecretEnc is the vault envelope of the mailbox app password.
	SecretEnc string

	// IsActive controls whether the sync and send engines consider
	// this mailbox at all.
	IsActive bool

	// IsVerified records that the credential passed an IMAP check
	// at registration time.
	IsVerified bool

	// IsDeleted soft-deletes the mailbox. Deleted mailboxes are
	// invisible to sync and send but their rows are kept.
	IsDeleted bool

	// LastSyncAt, LastSyncStatus and LastSyncError describe the most
	// recent sync attempt, successful or not.
	LastSyncAt     *time.Time
	LastSyncStatus string
	LastSyncError  string

	CreatedAt time.Time
	UpdatedAt time.Time
}
