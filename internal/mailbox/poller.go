// Package mailbox polls an IMAP inbox for replies from leads and feeds
// them into the event pipeline as MESSAGE_RECEIVED events.
package mailbox

import (
	"context"
	"strings"
	"time"

	imap "github.com/BrianLeishman/go-imap"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// LeadLookup resolves a sender address to a known lead.
type LeadLookup interface {
	GetByEmail(ctx context.Context, email string) (repository.Lead, error)
}

// EventSink consumes the events the poller produces.
type EventSink interface {
	HandleEvent(ctx context.Context, evt orchestrator.Event) orchestrator.Result
}

// Poller periodically reads unseen inbox mail. Messages from unknown
// senders are marked seen and ignored; messages from leads become
// MESSAGE_RECEIVED events.
type Poller struct {
	host     string
	port     int
	username string
	password string
	interval time.Duration

	leads LeadLookup
	sink  EventSink
	log   *logger.Logger
}

func NewPoller(cfg config.MailboxConfig, leads LeadLookup, sink EventSink, log *logger.Logger) *Poller {
	if !cfg.IsMailboxEnabled() {
		return nil
	}
	return &Poller{
		host:     cfg.GetIMAPHost(),
		port:     cfg.GetIMAPPort(),
		username: cfg.GetIMAPUsername(),
		password: cfg.GetIMAPPassword(),
		interval: cfg.GetMailboxPollInterval(),
		leads:    leads,
		sink:     sink,
		log:      log,
	}
}

func (p *Poller) Run(ctx context.Context) {
	if p == nil {
		return
	}
	p.log.Info("mailbox poller started", "host", p.host, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("mailbox poller stopped")
			return
		case <-ticker.C:
		}

		if err := p.poll(ctx); err != nil {
			p.log.Warn("mailbox poll failed", "error", err)
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	conn, err := imap.New(p.username, p.password, p.host, p.port)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SelectFolder("INBOX"); err != nil {
		return err
	}

	uids, err := conn.GetUIDs("UNSEEN")
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	emails, err := conn.GetEmails(uids...)
	if err != nil {
		return err
	}

	for uid, msg := range emails {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.handleMessage(ctx, msg)
		if err := conn.MarkSeen(uid); err != nil {
			p.log.Warn("failed to mark message seen", "uid", uid, "error", err)
		}
	}
	return nil
}

func (p *Poller) handleMessage(ctx context.Context, msg *imap.Email) {
	sender := firstAddress(msg.From)
	if sender == "" {
		return
	}

	lead, err := p.leads.GetByEmail(ctx, sender)
	if err != nil {
		// Not every inbox message is from a lead.
		p.log.Debug("inbox message from unknown sender", "from", sender)
		return
	}

	body := strings.TrimSpace(msg.Text)
	if body == "" {
		body = strings.TrimSpace(msg.Subject)
	}

	evt := orchestrator.NewEvent(orchestrator.MessageReceived, lead.ID, "mailbox", map[string]string{
		"subject": msg.Subject,
		"body":    body,
		"from":    sender,
	})
	res := p.sink.HandleEvent(ctx, evt)
	if res.Err != nil {
		p.log.Error("failed to process inbound reply", "lead_id", lead.ID, "error", res.Err)
		return
	}
	p.log.Info("inbound reply processed", "lead_id", lead.ID, "from", sender)
}

func firstAddress(addrs imap.EmailAddresses) string {
	for addr := range addrs {
		return strings.ToLower(addr)
	}
	return ""
}
