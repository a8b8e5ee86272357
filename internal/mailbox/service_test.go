package mailbox_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/mail"
	"github.com/nhle/mail-responder/internal/mailbox"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/tests/testutil"
)

// checkFetcher accepts only one known password.
type checkFetcher struct {
	password string
	checks   int
}

func (f *checkFetcher) CheckCredential(_ context.Context, cred mail.Credential) error {
	f.checks++
	if cred.Password != f.password {
		return errors.New("LOGIN failed")
	}
	return nil
}

func (f *checkFetcher) FetchUnseen(_ context.Context, _ mail.Credential) ([]mail.IncomingMessage, error) {
	return nil, nil
}

// prefixCrypter marks envelopes so tests can tell them from plaintext.
type prefixCrypter struct{}

func (prefixCrypter) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func newService(t *testing.T) (*mailbox.Service, store.Store, *checkFetcher) {
	t.Helper()

	s := testutil.NewTestStore(t)
	fetcher := &checkFetcher{password: "app-password"}
	svc := mailbox.NewService(s, fetcher, prefixCrypter{}, zap.NewNop())
	return svc, s, fetcher
}

func TestRegisterVerifiesAndEncrypts(t *testing.T) {
	svc, s, fetcher := newService(t)
	ctx := context.Background()

	mb, err := svc.Register(ctx, "u1", "Work@Example.COM", "work", "app-password")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if mb.Address != "work@example.com" {
		t.Errorf("address = %q, want lowercased", mb.Address)
	}
	if !mb.IsActive || !mb.IsVerified {
		t.Errorf("active=%v verified=%v, want both true", mb.IsActive, mb.IsVerified)
	}
	if fetcher.checks != 1 {
		t.Errorf("credential checked %d times, want 1", fetcher.checks)
	}

	stored, err := s.GetMailbox(ctx, mb.ID, "u1")
	if err != nil {
		t.Fatalf("GetMailbox: %v", err)
	}
	if stored.SecretEnc != "enc:app-password" {
		t.Errorf("SecretEnc = %q, want encrypted envelope", stored.SecretEnc)
	}
}

func TestRegisterRejectsBadCredential(t *testing.T) {
	svc, s, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "u1", "work@example.com", "work", "wrong")
	if !errors.Is(err, mailbox.ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}

	boxes, total, err := s.ListMailboxes(ctx, "u1", store.MailboxFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListMailboxes: %v", err)
	}
	if total != 0 || len(boxes) != 0 {
		t.Error("mailbox stored despite failed verification")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, fetcher := newService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "u1", "not-an-address", "x", "pw"); !errors.Is(err, mailbox.ErrInvalidAddress) {
		t.Errorf("err = %v, want ErrInvalidAddress", err)
	}
	if _, err := svc.Register(ctx, "u1", "a@example.com", "x", ""); !errors.Is(err, mailbox.ErrEmptyPassword) {
		t.Errorf("err = %v, want ErrEmptyPassword", err)
	}
	if fetcher.checks != 0 {
		t.Error("credential checked despite invalid input")
	}
}

func TestRegisterDuplicateAddress(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "u1", "a@example.com", "first", "app-password"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, "u1", "A@EXAMPLE.com", "second", "app-password")
	if !errors.Is(err, store.ErrDuplicateMailbox) {
		t.Errorf("err = %v, want ErrDuplicateMailbox", err)
	}
}

func TestUpdateReverifiesNewPassword(t *testing.T) {
	svc, s, fetcher := newService(t)
	ctx := context.Background()

	mb, err := svc.Register(ctx, "u1", "a@example.com", "work", "app-password")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	bad := "wrong"
	if _, err := svc.Update(ctx, "u1", mb.ID, mailbox.UpdateParams{Password: &bad}); !errors.Is(err, mailbox.ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}

	stored, err := s.GetMailbox(ctx, mb.ID, "u1")
	if err != nil {
		t.Fatalf("GetMailbox: %v", err)
	}
	if stored.SecretEnc != "enc:app-password" {
		t.Error("secret replaced despite failed verification")
	}

	fetcher.password = "new-password"
	good := "new-password"
	nickname := "renamed"
	inactive := false
	updated, err := svc.Update(ctx, "u1", mb.ID, mailbox.UpdateParams{
		Nickname: &nickname,
		IsActive: &inactive,
		Password: &good,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Nickname != "renamed" || updated.IsActive {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.SecretEnc != "enc:new-password" {
		t.Errorf("SecretEnc = %q, want re-encrypted", updated.SecretEnc)
	}
}

func TestDeleteHidesMailbox(t *testing.T) {
	svc, s, _ := newService(t)
	ctx := context.Background()

	mb, err := svc.Register(ctx, "u1", "a@example.com", "work", "app-password")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Delete(ctx, "u1", mb.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.GetSendableMailbox(ctx, mb.ID, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted mailbox still sendable: %v", err)
	}

	active, err := s.ListActiveMailboxes(ctx, "u1")
	if err != nil {
		t.Fatalf("ListActiveMailboxes: %v", err)
	}
	if len(active) != 0 {
		t.Error("deleted mailbox still listed as active")
	}
}
