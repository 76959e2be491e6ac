package sender

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

var ErrNoRecipients = errors.New("no alert recipients")

type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// SMTPEmailSender sends plain-text operator alerts. Every subject is
// prefixed so alerts can be filtered by mail rules.
type SMTPEmailSender struct {
	addr   string
	auth   smtp.Auth
	from   string
	prefix string
}

func NewSMTPEmailSender(host, port, user, pass, from string) *SMTPEmailSender {
	return &SMTPEmailSender{
		addr:   fmt.Sprintf("%s:%s", host, port),
		auth:   smtp.PlainAuth("", user, pass, host),
		from:   from,
		prefix: "[iap-bridge] ",
	}
}

// recipients trims and de-duplicates addresses, keeping their order.
func recipients(to []string) []string {
	seen := make(map[string]bool, len(to))
	out := make([]string, 0, len(to))
	for _, addr := range to {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

func (s *SMTPEmailSender) message(to []string, subject, body string) (*email.Email, error) {
	rcpt := recipients(to)
	if len(rcpt) == 0 {
		return nil, ErrNoRecipients
	}
	e := email.NewEmail()
	e.From = s.from
	e.To = rcpt
	e.Subject = s.prefix + subject
	e.Text = []byte(body)
	e.Headers.Set("X-Auto-Response-Suppress", "All")
	return e, nil
}

func (s *SMTPEmailSender) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := s.message(to, subject, body)
	if err != nil {
		return err
	}
	return e.Send(s.addr, s.auth)
}
