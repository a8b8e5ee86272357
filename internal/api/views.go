package api

import (
	"time"

	"github.com/nhle/mail-responder/internal/model"
)

// mailboxView is the API shape of a mailbox. The encrypted secret is
// never serialized.
type mailboxView struct {
	ID             string     `json:"id"`
	Address        string     `json:"address"`
	Nickname       string     `json:"nickname"`
	IsActive       bool       `json:"isActive"`
	IsVerified     bool       `json:"isVerified"`
	LastSyncAt     *time.Time `json:"lastSyncAt"`
	LastSyncStatus string     `json:"lastSyncStatus,omitempty"`
	LastSyncError  string     `json:"lastSyncError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func toMailboxView(mb model.Mailbox) mailboxView {
	return mailboxView{
		ID:             mb.ID,
		Address:        mb.Address,
		Nickname:       mb.Nickname,
		IsActive:       mb.IsActive,
		IsVerified:     mb.IsVerified,
		LastSyncAt:     mb.LastSyncAt,
		LastSyncStatus: mb.LastSyncStatus,
		LastSyncError:  mb.LastSyncError,
		CreatedAt:      mb.CreatedAt,
		UpdatedAt:      mb.UpdatedAt,
	}
}

func toMailboxViews(boxes []model.Mailbox) []mailboxView {
	views := make([]mailboxView, len(boxes))
	for i, mb := range boxes {
		views[i] = toMailboxView(mb)
	}
	return views
}

type messageView struct {
	ID             string              `json:"id"`
	MailboxID      string              `json:"mailboxId"`
	MailboxAddress string              `json:"mailboxAddress"`
	Nickname       string              `json:"nickname"`
	MessageID      string              `json:"messageId"`
	Subject        string              `json:"subject"`
	Body           string              `json:"body"`
	FromAddress    string              `json:"fromAddress"`
	FromName       string              `json:"fromName"`
	ReplyBody      string              `json:"replyBody"`
	Summary        string              `json:"summary"`
	Status         model.MessageStatus `json:"status"`
	ReceivedAt     time.Time           `json:"receivedAt"`
	DraftSavedAt   *time.Time          `json:"draftSavedAt"`
	SentAt         *time.Time          `json:"sentAt"`
	SendError      string              `json:"sendError,omitempty"`
}

func toMessageView(m model.Message) messageView {
	return messageView{
		ID:             m.ID,
		MailboxID:      m.MailboxID,
		MailboxAddress: m.MailboxAddress,
		Nickname:       m.Nickname,
		MessageID:      m.MessageID,
		Subject:        m.Subject,
		Body:           m.Body,
		FromAddress:    m.FromAddress,
		FromName:       m.FromName,
		ReplyBody:      m.ReplyBody,
		Summary:        m.Summary,
		Status:         m.Status,
		ReceivedAt:     m.ReceivedAt,
		DraftSavedAt:   m.DraftSavedAt,
		SentAt:         m.SentAt,
		SendError:      m.SendError,
	}
}

func toMessageViews(msgs []model.Message) []messageView {
	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = toMessageView(m)
	}
	return views
}
