package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/tests/testutil"
)

const testUser = "user-1"

func newMailbox(id, address string) model.Mailbox {
	return model.Mailbox{
		ID:        id,
		UserID:    testUser,
		Address:   address,
		Nickname:  "work",
		SecretEnc: "salt:nonce:tag:cipher",
		IsActive:  true,
	}
}

func newMessage(id, mailboxID, remoteID string) model.Message {
	return model.Message{
		ID:             id,
		UserID:         testUser,
		MailboxID:      mailboxID,
		MailboxAddress: "me@example.com",
		Nickname:       "work",
		MessageID:      remoteID,
		Subject:        "hello",
		Body:           "body text",
		FromAddress:    "sender@example.com",
		FromName:       "Sender",
		ReceivedAt:     time.Now().UTC(),
	}
}

func TestCreateMailboxDuplicate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateMailbox(ctx, newMailbox("mb-1", "Me@Example.com")); err != nil {
		t.Fatalf("creating mailbox: %v", err)
	}

	// Same address (different case) for the same user must be rejected.
	err := s.CreateMailbox(ctx, newMailbox("mb-2", "me@example.com"))
	if !errors.Is(err, store.ErrDuplicateMailbox) {
		t.Fatalf("expected ErrDuplicateMailbox, got %v", err)
	}

	// After a soft delete the address becomes available again.
	if err := s.SoftDeleteMailbox(ctx, "mb-1", testUser); err != nil {
		t.Fatalf("soft-deleting mailbox: %v", err)
	}
	if err := s.CreateMailbox(ctx, newMailbox("mb-3", "me@example.com")); err != nil {
		t.Fatalf("re-creating mailbox after soft delete: %v", err)
	}
}

func TestSoftDeletedMailboxHiddenFromSyncAndSend(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateMailbox(ctx, newMailbox("mb-1", "a@example.com")); err != nil {
		t.Fatalf("creating mailbox: %v", err)
	}
	if err := s.SoftDeleteMailbox(ctx, "mb-1", testUser); err != nil {
		t.Fatalf("soft-deleting mailbox: %v", err)
	}

	active, err := s.ListActiveMailboxes(ctx, testUser)
	if err != nil {
		t.Fatalf("listing active mailboxes: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("soft-deleted mailbox still listed as active: %v", active)
	}

	if _, err := s.GetSendableMailbox(ctx, "mb-1", testUser); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for soft-deleted mailbox, got %v", err)
	}
}

func TestRecordSyncResult(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateMailbox(ctx, newMailbox("mb-1", "a@example.com")); err != nil {
		t.Fatalf("creating mailbox: %v", err)
	}

	at := time.Now().UTC()
	if err := s.RecordSyncResult(ctx, "mb-1", at, model.SyncStatusFailed, "auth failed"); err != nil {
		t.Fatalf("recording sync failure: %v", err)
	}

	mb, err := s.GetMailbox(ctx, "mb-1", testUser)
	if err != nil {
		t.Fatalf("getting mailbox: %v", err)
	}
	if mb.LastSyncStatus != model.SyncStatusFailed || mb.LastSyncError != "auth failed" {
		t.Errorf("sync failure not recorded: status=%q error=%q", mb.LastSyncStatus, mb.LastSyncError)
	}
	if mb.LastSyncAt == nil {
		t.Error("last sync timestamp not recorded")
	}

	// A later OK sync clears the error.
	if err := s.RecordSyncResult(ctx, "mb-1", time.Now().UTC(), model.SyncStatusOK, ""); err != nil {
		t.Fatalf("recording sync success: %v", err)
	}
	mb, err = s.GetMailbox(ctx, "mb-1", testUser)
	if err != nil {
		t.Fatalf("getting mailbox: %v", err)
	}
	if mb.LastSyncStatus != model.SyncStatusOK || mb.LastSyncError != "" {
		t.Errorf("sync success not recorded: status=%q error=%q", mb.LastSyncStatus, mb.LastSyncError)
	}
}

func TestInsertMessageIfAbsentIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertMessageIfAbsent(ctx, newMessage("msg-1", "mb-1", "<remote-1>"))
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported no new row")
	}

	// Second ingestion of the same remote message: no duplicate row,
	// no overwrite of the existing fields.
	dup := newMessage("msg-other", "mb-1", "<remote-1>")
	dup.Subject = "changed subject"
	inserted, err = s.InsertMessageIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("second insert of the same remote message reported a new row")
	}

	m, err := s.GetMessage(ctx, "msg-1", testUser)
	if err != nil {
		t.Fatalf("getting message: %v", err)
	}
	if m.Subject != "hello" {
		t.Errorf("existing row was overwritten: subject=%q", m.Subject)
	}

	// The same remote id under a different mailbox is a distinct message.
	inserted, err = s.InsertMessageIfAbsent(ctx, newMessage("msg-2", "mb-2", "<remote-1>"))
	if err != nil {
		t.Fatalf("inserting for second mailbox: %v", err)
	}
	if !inserted {
		t.Error("same remote id under a different mailbox was not inserted")
	}
}

func TestSaveDraftRespectsTerminalStatus(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertMessageIfAbsent(ctx, newMessage("msg-1", "mb-1", "<r1>")); err != nil {
		t.Fatalf("inserting message: %v", err)
	}

	saved, err := s.SaveDraft(ctx, "msg-1", testUser, "draft body", time.Now())
	if err != nil {
		t.Fatalf("saving draft: %v", err)
	}
	if !saved {
		t.Fatal("draft not saved on a fresh message")
	}

	m, err := s.GetMessage(ctx, "msg-1", testUser)
	if err != nil {
		t.Fatalf("getting message: %v", err)
	}
	if m.Status != model.StatusDraftSaved || m.ReplyBody != "draft body" {
		t.Errorf("draft not applied: status=%q reply=%q", m.Status, m.ReplyBody)
	}
	if m.DraftSavedAt == nil {
		t.Error("draft timestamp not set")
	}

	if err := s.MarkResponded(ctx, "msg-1", time.Now()); err != nil {
		t.Fatalf("marking responded: %v", err)
	}

	saved, err = s.SaveDraft(ctx, "msg-1", testUser, "too late", time.Now())
	if err != nil {
		t.Fatalf("saving draft on terminal message: %v", err)
	}
	if saved {
		t.Error("draft saved on a terminal message")
	}
}

func TestMarkRespondedClearsSendError(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertMessageIfAbsent(ctx, newMessage("msg-1", "mb-1", "<r1>")); err != nil {
		t.Fatalf("inserting message: %v", err)
	}

	if err := s.SetSendError(ctx, "msg-1", "smtp timeout"); err != nil {
		t.Fatalf("setting send error: %v", err)
	}
	m, err := s.GetMessage(ctx, "msg-1", testUser)
	if err != nil {
		t.Fatalf("getting message: %v", err)
	}
	if m.SendError != "smtp timeout" {
		t.Errorf("send error not recorded: %q", m.SendError)
	}
	if m.Status != model.StatusUnread {
		t.Errorf("send failure changed status to %q", m.Status)
	}

	if err := s.MarkResponded(ctx, "msg-1", time.Now()); err != nil {
		t.Fatalf("marking responded: %v", err)
	}
	m, err = s.GetMessage(ctx, "msg-1", testUser)
	if err != nil {
		t.Fatalf("getting message: %v", err)
	}
	if m.Status != model.StatusReadResponded {
		t.Errorf("status = %q, want %q", m.Status, model.StatusReadResponded)
	}
	if m.SendError != "" {
		t.Errorf("send error not cleared on success: %q", m.SendError)
	}
	if m.SentAt == nil {
		t.Error("sent timestamp not set")
	}
}

func TestListMessagesFiltering(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i, remote := range []string{"<r1>", "<r2>", "<r3>"} {
		m := newMessage("", "mb-1", remote)
		m.ReceivedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if _, err := s.InsertMessageIfAbsent(ctx, m); err != nil {
			t.Fatalf("inserting message %s: %v", remote, err)
		}
	}

	all, total, err := s.ListMessages(ctx, testUser, store.MessageFilter{})
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("got %d messages (total %d), want 3", len(all), total)
	}

	// Newest first.
	if !all[0].ReceivedAt.After(all[2].ReceivedAt) {
		t.Error("messages not ordered newest first")
	}

	// Terminal messages are excluded by ExceptResponded.
	if err := s.MarkResponded(ctx, all[0].ID, time.Now()); err != nil {
		t.Fatalf("marking responded: %v", err)
	}
	open, total, err := s.ListMessages(ctx, testUser, store.MessageFilter{ExceptResponded: true})
	if err != nil {
		t.Fatalf("listing open messages: %v", err)
	}
	if total != 2 || len(open) != 2 {
		t.Errorf("got %d open messages (total %d), want 2", len(open), total)
	}

	// User scoping: a different user sees nothing.
	other, total, err := s.ListMessages(ctx, "someone-else", store.MessageFilter{})
	if err != nil {
		t.Fatalf("listing for other user: %v", err)
	}
	if total != 0 || len(other) != 0 {
		t.Error("messages leaked across users")
	}
}

func TestJobCountersStayConsistent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	job := model.BulkJob{ID: "job-1", UserID: testUser, Total: 3}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("creating job: %v", err)
	}
	if err := s.MarkJobRunning(ctx, "job-1"); err != nil {
		t.Fatalf("marking job running: %v", err)
	}

	results := []model.JobResult{
		{MessageID: "m1", OK: true},
		{MessageID: "m2", OK: false, Error: "Mailbox not found or inactive"},
		{MessageID: "m3", OK: true},
	}

	prevProcessed := 0
	for i, r := range results {
		if err := s.AppendJobResult(ctx, "job-1", i, r); err != nil {
			t.Fatalf("appending result %d: %v", i, err)
		}

		got, err := s.GetJob(ctx, "job-1", testUser)
		if err != nil {
			t.Fatalf("getting job: %v", err)
		}
		if got.Processed != got.Success+got.Failed {
			t.Errorf("after item %d: processed=%d success=%d failed=%d",
				i, got.Processed, got.Success, got.Failed)
		}
		if got.Processed < prevProcessed {
			t.Errorf("processed decreased: %d -> %d", prevProcessed, got.Processed)
		}
		prevProcessed = got.Processed
	}

	if err := s.MarkJobDone(ctx, "job-1"); err != nil {
		t.Fatalf("marking job done: %v", err)
	}

	got, err := s.GetJob(ctx, "job-1", testUser)
	if err != nil {
		t.Fatalf("getting job: %v", err)
	}
	if got.Status != model.JobDone || got.Processed != 3 || got.Success != 2 || got.Failed != 1 {
		t.Errorf("terminal job state: %+v", got)
	}
	if got.LastError != "Mailbox not found or inactive" {
		t.Errorf("last error = %q", got.LastError)
	}

	list, err := s.GetJobResults(ctx, "job-1")
	if err != nil {
		t.Fatalf("getting job results: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d results, want 3", len(list))
	}
	if list[1].MessageID != "m2" || list[1].OK || list[1].Error == "" {
		t.Errorf("results[1] = %+v", list[1])
	}

	// Ownership scoping for polling.
	if _, err := s.GetJob(ctx, "job-1", "someone-else"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign job, got %v", err)
	}
}
