package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPDialer implements Dialer over wneessen/go-mail. Each Dial opens
// a fresh authenticated connection; the returned Sender can deliver
// several messages on that one connection before Close.
type SMTPDialer struct {
	host string
	port int
}

// NewSMTPDialer creates a dialer for the given SMTP endpoint.
func NewSMTPDialer(host string, port int) *SMTPDialer {
	return &SMTPDialer{host: host, port: port}
}

// Dial opens an authenticated SMTP connection using the credential.
func (d *SMTPDialer) Dial(ctx context.Context, cred Credential) (Sender, error) {
	client, err := gomail.NewClient(d.host,
		gomail.WithPort(d.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cred.Address),
		gomail.WithPassword(cred.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("creating SMTP client for %s: %w", cred.Address, err)
	}

	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to SMTP %s:%d: %w", d.host, d.port, err)
	}

	return &smtpSender{client: client}, nil
}

type smtpSender struct {
	client *gomail.Client
}

// Send composes and delivers a single message on the open connection.
func (s *smtpSender) Send(_ context.Context, out OutgoingMessage) error {
	msg := gomail.NewMsg()

	if err := msg.From(out.From); err != nil {
		return fmt.Errorf("setting sender %s: %w", out.From, err)
	}
	if err := msg.To(out.To); err != nil {
		return fmt.Errorf("setting recipient %s: %w", out.To, err)
	}

	msg.Subject(out.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, out.Body)

	if out.InReplyTo != "" {
		msg.SetGenHeader(gomail.HeaderInReplyTo, out.InReplyTo)
		msg.SetGenHeader(gomail.HeaderReferences, out.InReplyTo)
	}

	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("sending message to %s: %w", out.To, err)
	}

	return nil
}

func (s *smtpSender) Close() error {
	return s.client.Close()
}
