// Package notification is the owner-alert side channel: email and
// WhatsApp messages about events that need a human.
package notification

import (
	"context"
	"time"

	"outreach_backend/internal/whatsapp"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// AlertMailer sends internal notification mail.
type AlertMailer interface {
	SendAlert(ctx context.Context, toEmail, subject, body string) error
}

// Service fans one alert out to the configured owner channels. Sends
// are fire-and-forget: failures are logged, never returned, so a dead
// gateway cannot fail the pipeline that raised the alert.
type Service struct {
	mailer     AlertMailer
	wa         *whatsapp.Client
	ownerEmail string
	ownerPhone string
	log        *logger.Logger
}

func NewService(mailer AlertMailer, wa *whatsapp.Client, cfg config.NotificationConfig, log *logger.Logger) *Service {
	return &Service{
		mailer:     mailer,
		wa:         wa,
		ownerEmail: cfg.GetOwnerEmail(),
		ownerPhone: cfg.GetOwnerPhone(),
		log:        log,
	}
}

// Notify delivers an alert to the owner. The channel tag is carried in
// the log line for filtering; every alert goes to all configured
// transports.
func (s *Service) Notify(_ context.Context, channel, subject, body string) {
	s.log.Info("owner alert", "channel", channel, "subject", subject)

	go func() {
		// Detached from the caller: the alert outlives the request.
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if s.mailer != nil && s.ownerEmail != "" {
			if err := s.mailer.SendAlert(sendCtx, s.ownerEmail, subject, body); err != nil {
				s.log.Error("alert email failed", "channel", channel, "error", err)
			}
		}
		if s.wa != nil && s.ownerPhone != "" {
			if err := s.wa.SendMessage(sendCtx, s.ownerPhone, subject+"\n\n"+body); err != nil {
				s.log.Error("alert whatsapp failed", "channel", channel, "error", err)
			}
		}
	}()
}
