package mail

import (
	"context"
	"fmt"
	"html"
	"io"

	"gopkg.in/gomail.v2"

	"github.com/aidly/aidly-api/pkg/config"
)

// Attachment is an in-memory file sent with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a single outbound email to one recipient.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Sender delivers messages over some transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
}

// NewSMTPSender constructs an SMTP sender from mail configuration.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// BaseURL is the public frontend address used when building links.
func (s *SMTPSender) BaseURL() string {
	return s.cfg.BaseURL
}

// Send dials the relay and delivers msg. gomail has no context support, so ctx is only checked up front.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) (*gomail.Message, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("email recipient required")
	}
	m := gomail.NewMessage()
	if s.cfg.FromName != "" {
		m.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.FromName)
	} else {
		m.SetHeader("From", s.cfg.FromAddress)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	text := msg.TextBody
	if text == "" {
		text = msg.Subject
	}
	m.SetBody("text/plain", text)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	for _, att := range msg.Attachments {
		data := att.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}))
		}
		m.Attach(att.Filename, settings...)
	}
	return m, nil
}

// Layout wraps an HTML fragment in the shared email shell.
func Layout(title, fragment, actionURL, actionText string) string {
	button := ""
	if actionURL != "" {
		if actionText == "" {
			actionText = "Open in AidlY"
		}
		button = fmt.Sprintf(`<p><a href="%s" style="display:inline-block;padding:10px 18px;background:#2563eb;color:#fff;border-radius:4px;text-decoration:none">%s</a></p>`,
			html.EscapeString(actionURL), html.EscapeString(actionText))
	}
	return fmt.Sprintf(`<html>
<body style="font-family:Arial,sans-serif;color:#111">
<h2>%s</h2>
%s
%s
<p style="color:#6b7280;font-size:12px">You are receiving this because of your AidlY notification settings.</p>
</body>
</html>`, html.EscapeString(title), fragment, button)
}
