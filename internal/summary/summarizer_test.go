package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/tests/testutil"
)

func seedMessage(t *testing.T, s store.Store, body string) model.Message {
	t.Helper()

	ctx := context.Background()
	mb := model.Mailbox{
		ID:        uuid.NewString(),
		UserID:    "u1",
		Address:   uuid.NewString()[:8] + "@example.com",
		Nickname:  "work",
		SecretEnc: "secret",
		IsActive:  true,
	}
	if err := s.CreateMailbox(ctx, mb); err != nil {
		t.Fatalf("CreateMailbox: %v", err)
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		UserID:         "u1",
		MailboxID:      mb.ID,
		MailboxAddress: mb.Address,
		MessageID:      "<" + uuid.NewString() + ">",
		Subject:        "Invoice",
		Body:           body,
		FromAddress:    "sender@example.com",
		Status:         model.StatusUnread,
		ReceivedAt:     time.Now(),
	}
	if _, err := s.InsertMessageIfAbsent(ctx, msg); err != nil {
		t.Fatalf("InsertMessageIfAbsent: %v", err)
	}
	return msg
}

func chatServer(t *testing.T, reply string, hits *int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestSummarizeStoresResult(t *testing.T) {
	s := testutil.NewTestStore(t)
	msg := seedMessage(t, s, "<p>Please pay invoice &amp; confirm.</p>")

	hits := 0
	srv := chatServer(t, "Sender asks for invoice payment confirmation.", &hits)
	defer srv.Close()

	sum := New(s, srv.URL, "test-token", "", 0, zap.NewNop())

	got, err := sum.Summarize(context.Background(), "u1", msg.ID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Sender asks for invoice payment confirmation." {
		t.Errorf("summary = %q", got)
	}

	stored, err := s.GetMessage(context.Background(), msg.ID, "u1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if stored.Summary != got {
		t.Errorf("stored summary = %q, want %q", stored.Summary, got)
	}
}

func TestSummarizeCachesExisting(t *testing.T) {
	s := testutil.NewTestStore(t)
	msg := seedMessage(t, s, "some body")

	hits := 0
	srv := chatServer(t, "A short summary.", &hits)
	defer srv.Close()

	sum := New(s, srv.URL, "test-token", "", 0, zap.NewNop())

	ctx := context.Background()
	if _, err := sum.Summarize(ctx, "u1", msg.ID); err != nil {
		t.Fatalf("first Summarize: %v", err)
	}
	if _, err := sum.Summarize(ctx, "u1", msg.ID); err != nil {
		t.Fatalf("second Summarize: %v", err)
	}
	if hits != 1 {
		t.Errorf("API hit %d times, want 1", hits)
	}
}

func TestSummarizeStripsThinking(t *testing.T) {
	s := testutil.NewTestStore(t)
	msg := seedMessage(t, s, "some body")

	hits := 0
	srv := chatServer(t, "<think>reasoning here</think>The actual summary.", &hits)
	defer srv.Close()

	sum := New(s, srv.URL, "test-token", "", 0, zap.NewNop())

	got, err := sum.Summarize(context.Background(), "u1", msg.ID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "The actual summary." {
		t.Errorf("summary = %q", got)
	}
}

func TestSummarizeCapsLongReply(t *testing.T) {
	s := testutil.NewTestStore(t)
	msg := seedMessage(t, s, "some body")

	long := strings.TrimSpace(strings.Repeat("word ", 80))
	hits := 0
	srv := chatServer(t, long, &hits)
	defer srv.Close()

	sum := New(s, srv.URL, "test-token", "", 0, zap.NewNop())

	got, err := sum.Summarize(context.Background(), "u1", msg.ID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n := len(strings.Fields(got)); n != maxSummaryWords {
		t.Errorf("summary has %d words, want %d", n, maxSummaryWords)
	}

	stored, err := s.GetMessage(context.Background(), msg.ID, "u1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if nStored := len(strings.Fields(stored.Summary)); nStored > maxSummaryWords {
		t.Errorf("stored summary has %d words, want at most %d", nStored, maxSummaryWords)
	}
}

func TestCapWords(t *testing.T) {
	if got := capWords("one two three", 2); got != "one two" {
		t.Errorf("capWords = %q, want %q", got, "one two")
	}
	if got := capWords("short", 50); got != "short" {
		t.Errorf("capWords = %q, want unchanged input", got)
	}
}

func TestSummarizeEmptyBody(t *testing.T) {
	s := testutil.NewTestStore(t)
	msg := seedMessage(t, s, "   ")

	sum := New(s, "http://unused.invalid", "test-token", "", 0, zap.NewNop())

	if _, err := sum.Summarize(context.Background(), "u1", msg.ID); !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
}

func TestSummarizeWithoutToken(t *testing.T) {
	s := testutil.NewTestStore(t)

	sum := New(s, "", "", "", 0, zap.NewNop())

	if _, err := sum.Summarize(context.Background(), "u1", "any"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"<p>one</p><p>two</p>", "one\ntwo"},
		{"a &amp; b &lt;c&gt;", "a & b <c>"},
		{"line<br>break", "line\nbreak"},
	}
	for _, c := range cases {
		if got := stripHTML(c.in); got != c.want {
			t.Errorf("stripHTML(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
