package services

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"github.com/whisperline/whisperline-backend/internal/config"
)

// SMTPMailer sends passcodes over plain SMTP with AUTH PLAIN.
type SMTPMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	return &SMTPMailer{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.SMTPFrom,
	}
}

func (m *SMTPMailer) SendCode(ctx context.Context, toEmail, code string) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your Whisperline login code\r\n\r\nYour one-time passcode is %s. It expires in 5 minutes.\r\n",
		m.from, toEmail, code,
	)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{toEmail}, []byte(msg))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMailer prints the passcode instead of emailing it. Development only.
type LogMailer struct{}

func (LogMailer) SendCode(ctx context.Context, toEmail, code string) error {
	log.Printf("📧 [dev] OTP for %s: %s", toEmail, code)
	return nil
}
