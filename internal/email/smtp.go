// Package email delivers outbound mail over SMTP: outreach sequence
// steps to leads and alert mail to the account owner.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"outreach_backend/platform/config"
)

// SMTPSender delivers mail via a direct SMTP connection using go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toName, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if toName != "" {
		if err := msg.AddToFormat(toName, toEmail); err != nil {
			return fmt.Errorf("smtp to: %w", err)
		}
	} else if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendOutreach delivers one rendered sequence step to a lead.
func (s *SMTPSender) SendOutreach(ctx context.Context, toName, toEmail, subject, body string) error {
	content, err := renderEmailTemplate("outreach.html", outreachEmailData{
		Subject: subject,
		Body:    body,
		Sender:  s.fromName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toName, toEmail, subject, content)
}

// SendAlert delivers an internal notification to the account owner.
func (s *SMTPSender) SendAlert(ctx context.Context, toEmail, subject, body string) error {
	content, err := renderEmailTemplate("alert.html", alertEmailData{
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, "", toEmail, subject, content)
}
