package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
)

// SMTPSender delivers email notifications over plain SMTP. It
// implements the notification transport contract.
type SMTPSender struct {
	mode     string // "dev" logs instead of sending
	host     string
	port     int
	username string
	password string
	from     string
	logger   *logrus.Logger
}

// Config holds SMTP configuration
type Config struct {
	Mode     string
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPSender creates a new SMTP email sender
func NewSMTPSender(cfg Config, logger *logrus.Logger) *SMTPSender {
	return &SMTPSender{
		mode:     cfg.Mode,
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		logger:   logger,
	}
}

// Send delivers one message to one email address. The payload becomes
// the body; the subject is fixed per message class for now.
func (s *SMTPSender) Send(recipient, payload string) error {
	if s.mode == "dev" {
		s.logger.WithFields(logrus.Fields{
			"recipient": recipient,
			"payload":   payload,
		}).Info("Email (dev mode, not sent)")
		return nil
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", recipient),
		"Subject: Your Buslink booking",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		payload,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	if err := smtp.SendMail(addr, auth, s.from, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
