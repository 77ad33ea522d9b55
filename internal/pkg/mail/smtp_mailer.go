package mail

import (
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
)

// Sender delivers one HTML mail.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends through the SMTP relay configured in the environment.
type SMTPSender struct{}

func (SMTPSender) Send(to, subject, body string) error {
	return SendMail(to, subject, body)
}

func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("MAIL_HOST", "")
	port := env.GetEnv("MAIL_PORT", "587")
	username := env.GetEnv("MAIL_USER", "")
	password := env.GetEnv("MAIL_PASSWORD", "")
	sender := env.GetEnv("MAIL_FROM", "")

	if host == "" {
		return fmt.Errorf("mail: MAIL_HOST not configured")
	}
	if sender == "" {
		sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	msg := buildMessage(sender, to, subject, body)

	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		log.Errorf("[Mail] send to %s failed: %v", to, err)
		return err
	}
	log.Infof("[Mail] sent %q to %s via %s", subject, to, addr)
	return nil
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// buildMessage renders the raw message. Header values are folded onto one
// line and the subject is RFC 2047 encoded when it is not plain ASCII.
func buildMessage(sender, to, subject, body string) []byte {
	subject = mime.QEncoding.Encode("utf-8", headerBreaks.Replace(subject))
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n",
			headerBreaks.Replace(sender), headerBreaks.Replace(to), subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)
}
