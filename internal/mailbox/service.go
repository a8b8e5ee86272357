// Package mailbox manages the directory of external mail accounts:
// registration with a live credential check, updates, and soft
// deletion.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/mail"
	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/store"
)

var (
	// ErrInvalidAddress rejects a registration with a malformed email
	// address.
	ErrInvalidAddress = errors.New("Invalid email address")

	// ErrEmptyPassword rejects a registration without an app password.
	ErrEmptyPassword = errors.New("Password is required")

	// ErrVerificationFailed means the IMAP server refused the
	// credential at registration time.
	ErrVerificationFailed = errors.New("Could not connect to mailbox with given credentials")
)

// Crypter seals a mailbox password into a storable envelope.
type Crypter interface {
	Encrypt(plaintext string) (string, error)
}

// Service owns mailbox lifecycle operations.
type Service struct {
	store   store.Store
	fetcher mail.Fetcher
	vault   Crypter
	logger  *zap.Logger
}

// NewService creates a mailbox service.
func NewService(s store.Store, fetcher mail.Fetcher, vault Crypter, logger *zap.Logger) *Service {
	return &Service{
		store:   s,
		fetcher: fetcher,
		vault:   vault,
		logger:  logger,
	}
}

// UpdateParams carries the optional fields of a mailbox update. Nil
// fields are left untouched.
type UpdateParams struct {
	Nickname *string
	IsActive *bool
	Password *string
}

// Register verifies the credential against the IMAP server, encrypts
// the password, and stores the mailbox. The plaintext password never
// leaves this call.
func (s *Service) Register(ctx context.Context, userID, address, nickname, password string) (*model.Mailbox, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if _, err := netmail.ParseAddress(address); err != nil {
		return nil, ErrInvalidAddress
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	cred := mail.Credential{Address: address, Password: password}
	if err := s.fetcher.CheckCredential(ctx, cred); err != nil {
		s.logger.Warn("mailbox verification failed",
			zap.String("address", address),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	envelope, err := s.vault.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("encrypting mailbox credential: %w", err)
	}

	mb := model.Mailbox{
		ID:         uuid.NewString(),
		UserID:     userID,
		Address:    address,
		Nickname:   nickname,
		SecretEnc:  envelope,
		IsActive:   true,
		IsVerified: true,
	}
	if err := s.store.CreateMailbox(ctx, mb); err != nil {
		return nil, err
	}

	return s.store.GetMailbox(ctx, mb.ID, userID)
}

// Update applies the given fields. A new password is re-verified
// against the IMAP server and re-encrypted before it is stored.
func (s *Service) Update(ctx context.Context, userID, id string, params UpdateParams) (*model.Mailbox, error) {
	mb, err := s.store.GetMailbox(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if params.Nickname != nil {
		mb.Nickname = *params.Nickname
	}
	if params.IsActive != nil {
		mb.IsActive = *params.IsActive
	}
	if params.Password != nil {
		if *params.Password == "" {
			return nil, ErrEmptyPassword
		}
		cred := mail.Credential{Address: mb.Address, Password: *params.Password}
		if err := s.fetcher.CheckCredential(ctx, cred); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		envelope, err := s.vault.Encrypt(*params.Password)
		if err != nil {
			return nil, fmt.Errorf("encrypting mailbox credential: %w", err)
		}
		mb.SecretEnc = envelope
		mb.IsVerified = true
	}

	mb.UpdatedAt = time.Now()
	if err := s.store.UpdateMailbox(ctx, *mb); err != nil {
		return nil, err
	}

	return s.store.GetMailbox(ctx, id, userID)
}

// Delete soft-deletes the mailbox, hiding it from sync and send while
// keeping its row and messages.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.SoftDeleteMailbox(ctx, id, userID)
}

// List returns the user's mailboxes with the total count for paging.
func (s *Service) List(ctx context.Context, userID string, f store.MailboxFilter) ([]model.Mailbox, int, error) {
	return s.store.ListMailboxes(ctx, userID, f)
}

// Get returns one mailbox owned by the user.
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Mailbox, error) {
	return s.store.GetMailbox(ctx, id, userID)
}
