package adapters

import (
	"context"

	"outreach_backend/internal/email"
	"outreach_backend/internal/sequence/scheduler"
)

// OutreachSender delivers rendered sequence steps over SMTP.
type OutreachSender struct {
	sender *email.SMTPSender
}

func NewOutreachSender(sender *email.SMTPSender) *OutreachSender {
	return &OutreachSender{sender: sender}
}

func (a *OutreachSender) Send(ctx context.Context, msg scheduler.Message) error {
	return a.sender.SendOutreach(ctx, msg.To.Name, msg.To.Email, msg.Subject, msg.Body)
}
