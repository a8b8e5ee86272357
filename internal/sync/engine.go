package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/mail"
	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/store"
)

// Decrypter recovers a mailbox password from its stored envelope.
type Decrypter interface {
	Decrypt(envelope string) (string, error)
}

// MailboxResult is the per-mailbox outcome of one sync pass. Synced in
// the summary counts every attempted mailbox; per-mailbox failures show
// up in the Error field, not as a smaller Synced.
type MailboxResult struct {
	MailboxID string `json:"mailboxId"`
	Address   string `json:"address"`
	Nickname  string `json:"nickname"`
	Fetched   int    `json:"fetched"`
	Inserted  int    `json:"inserted"`
	Error     string `json:"error,omitempty"`
}

// Summary aggregates a full sync pass over a user's mailboxes.
type Summary struct {
	Synced    int             `json:"synced"`
	Inserted  int             `json:"inserted"`
	Mailboxes []MailboxResult `json:"mailboxes"`
}

// Engine pulls unseen messages from every active mailbox of a user
// into local storage.
type Engine struct {
	store   store.Store
	fetcher mail.Fetcher
	vault   Decrypter
	logger  *zap.Logger
}

// NewEngine creates a sync engine.
func NewEngine(s store.Store, fetcher mail.Fetcher, vault Decrypter, logger *zap.Logger) *Engine {
	return &Engine{
		store:   s,
		fetcher: fetcher,
		vault:   vault,
		logger:  logger,
	}
}

// SyncAll syncs every active, non-deleted mailbox of the user. A
// failing mailbox is recorded and skipped; it never aborts the pass.
// The sync outcome is stamped on each mailbox whether it succeeded or
// failed. A user without active mailboxes yields an empty summary.
func (e *Engine) SyncAll(ctx context.Context, userID string) (Summary, error) {
	mailboxes, err := e.store.ListActiveMailboxes(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Mailboxes: make([]MailboxResult, 0, len(mailboxes))}

	for _, mb := range mailboxes {
		result := e.syncMailbox(ctx, mb)
		summary.Synced++

		now := time.Now()
		if result.Error != "" {
			e.logger.Warn("mailbox sync failed",
				zap.String("mailbox_id", mb.ID),
				zap.String("address", mb.Address),
				zap.String("error", result.Error))
			if recErr := e.store.RecordSyncResult(ctx, mb.ID, now, model.SyncStatusFailed, result.Error); recErr != nil {
				e.logger.Error("recording sync failure", zap.String("mailbox_id", mb.ID), zap.Error(recErr))
			}
		} else {
			summary.Inserted += result.Inserted
			if recErr := e.store.RecordSyncResult(ctx, mb.ID, now, model.SyncStatusOK, ""); recErr != nil {
				e.logger.Error("recording sync result", zap.String("mailbox_id", mb.ID), zap.Error(recErr))
			}
		}

		summary.Mailboxes = append(summary.Mailboxes, result)
	}

	return summary, nil
}

// syncMailbox fetches unseen messages for one mailbox and inserts the
// ones not seen before.
func (e *Engine) syncMailbox(ctx context.Context, mb model.Mailbox) MailboxResult {
	result := MailboxResult{
		MailboxID: mb.ID,
		Address:   mb.Address,
		Nickname:  mb.Nickname,
	}

	password, err := e.vault.Decrypt(mb.SecretEnc)
	if err != nil {
		result.Error = "decrypting mailbox credential: " + err.Error()
		return result
	}

	incoming, err := e.fetcher.FetchUnseen(ctx, mail.Credential{
		Address:  mb.Address,
		Password: password,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Fetched = len(incoming)

	for _, in := range incoming {
		receivedAt := in.Date
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}

		inserted, err := e.store.InsertMessageIfAbsent(ctx, model.Message{
			ID:             uuid.NewString(),
			UserID:         mb.UserID,
			MailboxID:      mb.ID,
			MailboxAddress: mb.Address,
			Nickname:       mb.Nickname,
			MessageID:      in.MessageID,
			Subject:        in.Subject,
			Body:           in.TextBody,
			FromAddress:    in.FromAddress,
			FromName:       in.FromName,
			Status:         model.StatusUnread,
			ReceivedAt:     receivedAt,
		})
		if err != nil {
			result.Error = "storing message: " + err.Error()
			return result
		}
		if inserted {
			result.Inserted++
		}
	}

	return result
}
