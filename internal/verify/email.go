package verify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// EmailClient sends codes over plain SMTP.
type EmailClient struct {
	addr string
	from string
	auth smtp.Auth
	log  *slog.Logger

	// send is swappable in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailClient builds an SMTP-backed sender. addr is host:port.
func NewEmailClient(addr, from, username, password, host string, log *slog.Logger) *EmailClient {
	if log == nil {
		log = slog.Default()
	}

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	return &EmailClient{addr: addr, from: from, auth: auth, log: log, send: smtp.SendMail}
}

// SendCode mails the code to the destination address.
func (c *EmailClient) SendCode(ctx context.Context, destination, code string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Verification code\r\n\r\nYour verification code: %s\r\n",
		c.from, destination, code)

	if err := c.send(c.addr, c.auth, c.from, []string{destination}, []byte(msg)); err != nil {
		c.log.Error("email delivery failed", "error", err)
		return err
	}
	return nil
}
