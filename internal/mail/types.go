// Package mail wraps the IMAP and SMTP protocol clients behind narrow
// interfaces so the sync, send, and bulk engines can be exercised with
// fakes.
package mail

import (
	"context"
	"time"
)

// Credential is one mailbox's decrypted login.
type Credential struct {
	Address  string
	Password string
}

// IncomingMessage is the subset of a remote message the sync engine
// ingests.
type IncomingMessage struct {
	// MessageID is the Message-ID header, or the IMAP UID rendered as
	// a string when the header is absent.
	MessageID string

	Subject     string
	FromAddress string
	FromName    string

	// Date is the remote date header; zero when absent or unparseable.
	Date time.Time

	// TextBody is the first text part of the message, empty if none.
	TextBody string
}

// OutgoingMessage is one reply handed to the SMTP capability.
type OutgoingMessage struct {
	From    string
	To      string
	Subject string
	Body    string

	// InReplyTo threads the reply under the original message when set.
	InReplyTo string
}

// Fetcher retrieves unseen messages from a remote inbox. A fetch must
// not mark messages seen, so repeated syncs observe the same set.
type Fetcher interface {
	// CheckCredential verifies that the credential can log in and
	// open the inbox.
	CheckCredential(ctx context.Context, cred Credential) error

	// FetchUnseen connects, searches unseen messages, fetches them,
	// and releases the connection before returning.
	FetchUnseen(ctx context.Context, cred Credential) ([]IncomingMessage, error)
}

// Sender is an authenticated outbound connection. Close must be called
// on every exit path.
type Sender interface {
	Send(ctx context.Context, msg OutgoingMessage) error
	Close() error
}

// Dialer opens an authenticated Sender for a credential.
type Dialer interface {
	Dial(ctx context.Context, cred Credential) (Sender, error)
}
