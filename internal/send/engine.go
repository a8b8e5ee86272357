package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/mail"
	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/store"
)

// Error messages surface verbatim in API responses, so they read as
// user-facing sentences.
var (
	// ErrAlreadyResponded rejects a send for a message already in the
	// terminal status.
	ErrAlreadyResponded = errors.New("Email already responded")

	// ErrMailboxUnavailable rejects a send when the owning mailbox is
	// inactive or soft-deleted.
	ErrMailboxUnavailable = errors.New("Mailbox not found or inactive")

	// ErrEmptyReply rejects a send with no reply text given and no
	// draft saved.
	ErrEmptyReply = errors.New("Reply body is empty")
)

// Decrypter recovers a mailbox password from its stored envelope.
type Decrypter interface {
	Decrypt(envelope string) (string, error)
}

// Prepared is a send that has passed every precondition and is ready
// for delivery.
type Prepared struct {
	Message *model.Message
	Mailbox *model.Mailbox
	To      string
	Body    string
}

// Engine delivers replies over SMTP and keeps message state in step
// with the outcome.
type Engine struct {
	store  store.Store
	dialer mail.Dialer
	vault  Decrypter
	logger *zap.Logger
}

// NewEngine creates a send engine.
func NewEngine(s store.Store, dialer mail.Dialer, vault Decrypter, logger *zap.Logger) *Engine {
	return &Engine{
		store:  s,
		dialer: dialer,
		vault:  vault,
		logger: logger,
	}
}

// ReplySubject prefixes the subject with "Re: " unless it already
// carries a reply prefix.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// Prepare checks the preconditions for replying to a message, in
// order: the message must exist and belong to the user, must not be
// terminal, and its mailbox must be active. The recipient falls back
// to the original sender and the reply body to the saved draft when
// not given.
func (e *Engine) Prepare(ctx context.Context, userID, messageID, to, body string) (*Prepared, error) {
	msg, err := e.store.GetMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	if msg.Status.Terminal() {
		return nil, ErrAlreadyResponded
	}

	if to == "" {
		to = msg.FromAddress
	}
	if body == "" {
		body = msg.ReplyBody
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyReply
	}

	mb, err := e.store.GetSendableMailbox(ctx, msg.MailboxID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMailboxUnavailable
		}
		return nil, err
	}

	return &Prepared{Message: msg, Mailbox: mb, To: to, Body: body}, nil
}

// Dial opens an authenticated SMTP connection for the mailbox. The
// caller owns the returned Sender and must close it.
func (e *Engine) Dial(ctx context.Context, mb *model.Mailbox) (mail.Sender, error) {
	password, err := e.vault.Decrypt(mb.SecretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting mailbox credential: %w", err)
	}

	return e.dialer.Dial(ctx, mail.Credential{
		Address:  mb.Address,
		Password: password,
	})
}

// Deliver sends one prepared reply on an open connection and records
// the outcome. Success is the only transition into the terminal
// status; a failure stamps send_error and leaves the message eligible
// for retry.
func (e *Engine) Deliver(ctx context.Context, sender mail.Sender, p *Prepared) error {
	err := sender.Send(ctx, mail.OutgoingMessage{
		From:      p.Mailbox.Address,
		To:        p.To,
		Subject:   ReplySubject(p.Message.Subject),
		Body:      p.Body,
		InReplyTo: p.Message.MessageID,
	})
	if err != nil {
		e.logger.Warn("reply delivery failed",
			zap.String("message_id", p.Message.ID),
			zap.String("to", p.To),
			zap.Error(err))
		if recErr := e.store.SetSendError(ctx, p.Message.ID, err.Error()); recErr != nil {
			e.logger.Error("recording send error", zap.String("message_id", p.Message.ID), zap.Error(recErr))
		}
		return fmt.Errorf("sending reply: %w", err)
	}

	if err := e.store.MarkResponded(ctx, p.Message.ID, time.Now()); err != nil {
		return fmt.Errorf("marking message responded: %w", err)
	}

	return nil
}

// SendReply replies to a single message on a fresh connection. An
// empty recipient addresses the original sender. It returns the
// updated message on success.
func (e *Engine) SendReply(ctx context.Context, userID, messageID, to, body string) (*model.Message, error) {
	p, err := e.Prepare(ctx, userID, messageID, to, body)
	if err != nil {
		return nil, err
	}

	sender, err := e.Dial(ctx, p.Mailbox)
	if err != nil {
		if recErr := e.store.SetSendError(ctx, p.Message.ID, err.Error()); recErr != nil {
			e.logger.Error("recording send error", zap.String("message_id", p.Message.ID), zap.Error(recErr))
		}
		return nil, err
	}
	defer func() { _ = sender.Close() }()

	if err := e.Deliver(ctx, sender, p); err != nil {
		return nil, err
	}

	return e.store.GetMessage(ctx, messageID, userID)
}
