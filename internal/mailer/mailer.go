// Package mailer delivers one-time passcodes to account emails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Sender delivers a passcode to an email address.
type Sender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// SMTPConfig describes the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends passcodes through an SMTP relay. STARTTLS is used whenever the
// relay advertises it.
type SMTP struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send sendFunc
}

var _ Sender = (*SMTP)(nil)

// NewSMTP validates cfg and constructs the sender.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp: host and from are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTP{cfg: cfg, auth: auth, send: smtp.SendMail}, nil
}

// SendOTP formats and sends the verification message. net/smtp has no
// context support; a cancelled ctx only prevents the attempt from starting.
func (s *SMTP) SendOTP(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("smtp: invalid recipient %q", email)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, s.auth, s.cfg.From, []string{email}, otpMessage(s.cfg.From, email, code)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func otpMessage(from, to, code string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Verify your account\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString("Your verification code is " + code + ".\r\n")
	b.WriteString("It expires in one minute.\r\n")
	return []byte(b.String())
}

// Log is a development sender that writes deliveries to the log instead of
// sending them. The code itself is logged only when ShowCode is set.
type Log struct {
	log      *zap.Logger
	ShowCode bool
}

var _ Sender = (*Log)(nil)

// NewLog constructs a log-only sender.
func NewLog(log *zap.Logger, showCode bool) *Log {
	return &Log{log: log, ShowCode: showCode}
}

func (l *Log) SendOTP(_ context.Context, email, code string) error {
	fields := []zap.Field{zap.String("to", email)}
	if l.ShowCode {
		fields = append(fields, zap.String("otp", code))
	}
	l.log.Info("otp delivery (log sender)", fields...)
	return nil
}
