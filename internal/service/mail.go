package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == s.from {
		return errors.New("refusing to send mail to the sender address")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail, %w", err)
	}

	return nil
}

// ConsoleMailer writes mails to the log instead of sending them
type ConsoleMailer struct{}

func (ConsoleMailer) Send(_ context.Context, m Message) error {
	zap.L().Info("Outgoing mail",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("body", m.Text),
	)

	return nil
}

// Outbox keeps every mail in memory. Setting Fail makes every Send return it.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
	Fail error
}

func (o *Outbox) Send(_ context.Context, m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Fail != nil {
		return o.Fail
	}

	o.sent = append(o.sent, m)
	return nil
}

func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]Message(nil), o.sent...)
}

func (o *Outbox) Last() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.sent) == 0 {
		return Message{}, false
	}

	return o.sent[len(o.sent)-1], true
}

func confirmationMail(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Please Confirm Your E-mail Address",
		Text: fmt.Sprintf("Hello!\n\n"+
			"You're receiving this e-mail because an account was registered with this address.\n\n"+
			"To confirm this is correct, go to %s\n\n"+
			"If you didn't register, you can ignore this e-mail.\n", link),
	}
}

func resetMail(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Password reset",
		Text: fmt.Sprintf("You're receiving this e-mail because you requested a password reset for your account.\n\n"+
			"Please go to the following page and choose a new password:\n\n%s\n\n"+
			"If you didn't request a reset, you can ignore this e-mail.\n", link),
	}
}
