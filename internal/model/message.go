package model

import "time"

// MessageStatus is the reply-workflow state of an ingested message.
type MessageStatus string

const (
	StatusUnread        MessageStatus = "Unread"
	StatusDraftSaved    MessageStatus = "DraftSaved"
	StatusReadResponded MessageStatus = "ReadResponded"
)

// Valid reports whether s is one of the known message statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusUnread, StatusDraftSaved, StatusReadResponded:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further replies.
func (s MessageStatus) Terminal() bool {
	return s == StatusReadResponded
}

// Message is one remote email ingested into local storage. Identity is
// (MailboxID, MessageID): the remote Message-ID header, falling back to
// the IMAP UID when the header is absent. Ingesting the same remote
// message twice is a no-op.
type Message struct {
	ID     string
	UserID string

	// MailboxID references the owning mailbox; MailboxAddress and
	// Nickname are denormalized from it for display.
	MailboxID      string
	MailboxAddress string
	Nickname       string

	// MessageID is the protocol-level identifier of the remote message.
	MessageID string

	Subject     string
	Body        string
	FromAddress string
	FromName    string

	// ReplyBody is the saved draft or sent reply text.
	ReplyBody string

	// Summary is the best-effort AI summary, empty until generated.
	Summary string

	Status MessageStatus

	ReceivedAt   time.Time
	DraftSavedAt *time.Time
	SentAt       *time.Time

	// SendError records the last failed send attempt. Cleared when a
	// send finally succeeds.
	SendError string

	CreatedAt time.Time
	UpdatedAt time.Time
}
