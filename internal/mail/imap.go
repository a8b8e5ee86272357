package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomessage "github.com/emersion/go-message/mail"
)

// IMAPFetcher implements Fetcher against a real IMAP server using
// go-imap v2. Every call dials a fresh connection and logs out before
// returning; nothing is cached across calls.
type IMAPFetcher struct {
	host string
	port int
}

// NewIMAPFetcher creates a fetcher for the given IMAP endpoint.
func NewIMAPFetcher(host string, port int) *IMAPFetcher {
	return &IMAPFetcher{host: host, port: port}
}

// connect establishes a TLS connection and authenticates. The caller
// is responsible for calling Logout on the returned client.
func (f *IMAPFetcher) connect(_ context.Context, cred Credential) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", f.host, f.port)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(cred.Address, cred.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", cred.Address, err)
	}

	return client, nil
}

// CheckCredential verifies the credential by logging in and selecting
// INBOX.
func (f *IMAPFetcher) CheckCredential(ctx context.Context, cred Credential) error {
	client, err := f.connect(ctx, cred)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}

	return nil
}

// FetchUnseen connects, selects INBOX, searches for unseen messages,
// and fetches their envelope and body. The body section is fetched
// with Peek so the remote unseen flag stays untouched and re-running a
// sync observes the same messages.
func (f *IMAPFetcher) FetchUnseen(ctx context.Context, cred Credential) ([]IncomingMessage, error) {
	client, err := f.connect(ctx, cred)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []IncomingMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		incoming := IncomingMessage{
			MessageID: fmt.Sprintf("%d", buf.UID),
		}

		if buf.Envelope != nil {
			if buf.Envelope.MessageID != "" {
				incoming.MessageID = buf.Envelope.MessageID
			}
			incoming.Subject = buf.Envelope.Subject
			incoming.Date = buf.Envelope.Date

			if len(buf.Envelope.From) > 0 {
				from := buf.Envelope.From[0]
				incoming.FromAddress = from.Addr()
				incoming.FromName = strings.TrimSpace(strings.Trim(from.Name, `"`))
			}
		}

		if raw := buf.FindBodySection(bodySection); raw != nil {
			incoming.TextBody = extractTextBody(raw)
		}

		messages = append(messages, incoming)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching unseen messages: %w", err)
	}

	return messages, nil
}

// extractTextBody parses a raw RFC 2822 message using go-message and
// returns the first text/plain part, or an empty string if none.
func extractTextBody(raw []byte) string {
	reader := bytes.NewReader(raw)

	mr, err := gomessage.CreateReader(reader)
	if err != nil {
		// If parsing fails, try treating the whole thing as plain text.
		return string(raw)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*gomessage.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		return string(body)
	}

	return ""
}
