package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender is the production implementation of the Sender interface.
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
}

// NewSMTPSender creates a new SMTP sender. Host and port are required.
func NewSMTPSender(host, port, username, password string) (*SMTPSender, error) {
	if host == "" || port == "" {
		return nil, fmt.Errorf("SMTP host and port are required")
	}
	return &SMTPSender{host: host, port: port, username: username, password: password}, nil
}

// Send delivers one message. Attachments are not supported over bare SMTP
// here; callers that need them should link their path in the body instead.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTMLBody)

	return smtp.SendMail(addr, auth, msg.From, []string{msg.To}, []byte(b.String()))
}
