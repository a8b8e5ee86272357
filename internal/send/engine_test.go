package send_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/mail"
	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/send"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/tests/testutil"
)

// fakeDialer hands out senders that record what they deliver.
type fakeDialer struct {
	sendErr error
	sent    []mail.OutgoingMessage
	dials   int
}

func (d *fakeDialer) Dial(_ context.Context, _ mail.Credential) (mail.Sender, error) {
	d.dials++
	return &fakeSender{dialer: d}, nil
}

type fakeSender struct {
	dialer *fakeDialer
	closed bool
}

func (s *fakeSender) Send(_ context.Context, msg mail.OutgoingMessage) error {
	if err := s.dialer.sendErr; err != nil {
		return err
	}
	s.dialer.sent = append(s.dialer.sent, msg)
	return nil
}

func (s *fakeSender) Close() error {
	s.closed = true
	return nil
}

type plainVault struct{}

func (plainVault) Decrypt(envelope string) (string, error) {
	return envelope, nil
}

func seedMailbox(t *testing.T, s store.Store, userID string, active bool) model.Mailbox {
	t.Helper()

	mb := model.Mailbox{
		ID:         uuid.NewString(),
		UserID:     userID,
		Address:    uuid.NewString()[:8] + "@example.com",
		Nickname:   "work",
		SecretEnc:  "password",
		IsActive:   active,
		IsVerified: true,
	}
	if err := s.CreateMailbox(context.Background(), mb); err != nil {
		t.Fatalf("CreateMailbox: %v", err)
	}
	return mb
}

func seedMessage(t *testing.T, s store.Store, mb model.Mailbox, status model.MessageStatus) model.Message {
	t.Helper()

	msg := model.Message{
		ID:             uuid.NewString(),
		UserID:         mb.UserID,
		MailboxID:      mb.ID,
		MailboxAddress: mb.Address,
		Nickname:       mb.Nickname,
		MessageID:      "<" + uuid.NewString() + ">",
		Subject:        "Quarterly report",
		Body:           "Please review the attached numbers.",
		FromAddress:    "sender@example.com",
		FromName:       "Sender",
		Status:         model.StatusUnread,
		ReceivedAt:     time.Now(),
	}
	inserted, err := s.InsertMessageIfAbsent(context.Background(), msg)
	if err != nil || !inserted {
		t.Fatalf("InsertMessageIfAbsent: inserted=%v err=%v", inserted, err)
	}

	if status == model.StatusDraftSaved {
		if _, err := s.SaveDraft(context.Background(), msg.ID, mb.UserID, "draft reply", time.Now()); err != nil {
			t.Fatalf("SaveDraft: %v", err)
		}
	}
	if status == model.StatusReadResponded {
		if err := s.MarkResponded(context.Background(), msg.ID, time.Now()); err != nil {
			t.Fatalf("MarkResponded: %v", err)
		}
	}
	return msg
}

func newEngine(s store.Store, dialer *fakeDialer) *send.Engine {
	return send.NewEngine(s, dialer, plainVault{}, zap.NewNop())
}

func TestSendReplySuccess(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	mb := seedMailbox(t, s, "u1", true)
	msg := seedMessage(t, s, mb, model.StatusUnread)

	dialer := &fakeDialer{}
	engine := newEngine(s, dialer)

	updated, err := engine.SendReply(ctx, "u1", msg.ID, "", "Thanks, looks good.")
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if updated.Status != model.StatusReadResponded {
		t.Errorf("status = %s, want ReadResponded", updated.Status)
	}
	if updated.SentAt == nil {
		t.Error("SentAt not stamped")
	}
	if updated.SendError != "" {
		t.Errorf("SendError = %q, want empty", updated.SendError)
	}

	if len(dialer.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(dialer.sent))
	}
	out := dialer.sent[0]
	if out.Subject != "Re: Quarterly report" {
		t.Errorf("subject = %q, want reply prefix", out.Subject)
	}
	if out.To != "sender@example.com" {
		t.Errorf("to = %q, want original sender", out.To)
	}
	if out.From != mb.Address {
		t.Errorf("from = %q, want mailbox address", out.From)
	}
	if out.InReplyTo != msg.MessageID {
		t.Errorf("InReplyTo = %q, want %q", out.InReplyTo, msg.MessageID)
	}
}

func TestSendReplyCustomRecipient(t *testing.T) {
	s := testutil.NewTestStore(t)

	mb := seedMailbox(t, s, "u1", true)
	msg := seedMessage(t, s, mb, model.StatusUnread)

	dialer := &fakeDialer{}
	engine := newEngine(s, dialer)

	if _, err := engine.SendReply(context.Background(), "u1", msg.ID, "forward@example.com", "see below"); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if len(dialer.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(dialer.sent))
	}
	if dialer.sent[0].To != "forward@example.com" {
		t.Errorf("to = %q, want the supplied recipient", dialer.sent[0].To)
	}
}

func TestSendReplyUsesSavedDraft(t *testing.T) {
	s := testutil.NewTestStore(t)

	mb := seedMailbox(t, s, "u1", true)
	msg := seedMessage(t, s, mb, model.StatusDraftSaved)

	dialer := &fakeDialer{}
	engine := newEngine(s, dialer)

	if _, err := engine.SendReply(context.Background(), "u1", msg.ID, "", ""); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if len(dialer.sent) != 1 || dialer.sent[0].Body != "draft reply" {
		t.Fatalf("expected draft body to be sent, got %+v", dialer.sent)
	}
}

func TestSendReplyEmptyBody(t *testing.T) {
	s := testutil.NewTestStore(t)

	mb := seedMailbox(t, s, "u1", true)
	msg := seedMessage(t, s, mb, model.StatusUnread)

	engine := newEngine(s, &fakeDialer{})

	if _, err := engine.SendReply(context.Background(), "u1", msg.ID, "", "   "); !errors.Is(err, send.ErrEmptyReply) {
		t.Errorf("err = %v, want ErrEmptyReply", err)
	}
}

func TestSendReplyAlreadyResponded(t *testing.T) {
	s := testutil.NewTestStore(t)

	mb := seedMailbox(t, s, "u1", true)
	msg := seedMessage(t, s, mb, model.StatusReadResponded)

	dialer := &fakeDialer{}
	engine := newEngine(s, dialer)

	_, err := engine.SendReply(context.Background(), "u1", msg.ID, "", "again")
	if !errors.Is(err, send.ErrAlreadyResponded) {
		t.Errorf("err = %v, want ErrAlreadyResponded", err)
	}
	if dialer.dials != 0 {
		t.Error("dialed SMTP despite terminal message")
	}
}

func TestSendReplyInactiveMailbox(t *testing.T) {
	s := testutil.NewTestStore(t)

	mb := seedMailbox(t, s, "u1", false)
	msg := seedMessage(t, s, mb, model.StatusUnread)

	engine := newEngine(s, &fakeDialer{})

	_, err := engine.SendReply(context.Background(), "u1", msg.ID, "", "hello")
	if !errors.Is(err, send.ErrMailboxUnavailable) {
		t.Errorf("err = %v, want ErrMailboxUnavailable", err)
	}
}

func TestSendReplyUnknownMessage(t *testing.T) {
	s := testutil.NewTestStore(t)

	engine := newEngine(s, &fakeDialer{})

	_, err := engine.SendReply(context.Background(), "u1", uuid.NewString(), "", "hello")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSendReplyFailureIsRetriable(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	mb := seedMailbox(t, s, "u1", true)
	msg := seedMessage(t, s, mb, model.StatusUnread)

	dialer := &fakeDialer{sendErr: errors.New("550 rejected")}
	engine := newEngine(s, dialer)

	if _, err := engine.SendReply(ctx, "u1", msg.ID, "", "hello"); err == nil {
		t.Fatal("expected send error")
	}

	after, err := s.GetMessage(ctx, msg.ID, "u1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if after.Status != model.StatusUnread {
		t.Errorf("status = %s after failure, want Unread", after.Status)
	}
	if after.SendError == "" {
		t.Error("SendError not recorded")
	}

	dialer.sendErr = nil
	updated, err := engine.SendReply(ctx, "u1", msg.ID, "", "hello")
	if err != nil {
		t.Fatalf("retry SendReply: %v", err)
	}
	if updated.Status != model.StatusReadResponded {
		t.Errorf("status = %s after retry, want ReadResponded", updated.Status)
	}
	if updated.SendError != "" {
		t.Errorf("SendError = %q after success, want cleared", updated.SendError)
	}
}

func TestReplySubject(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello", "Re: Hello"},
		{"Re: Hello", "Re: Hello"},
		{"RE: Hello", "RE: Hello"},
		{"", "Re: "},
	}
	for _, c := range cases {
		if got := send.ReplySubject(c.in); got != c.want {
			t.Errorf("ReplySubject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
