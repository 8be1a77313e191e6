package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"

	"github.com/mixelka/mailhub/pkg/models"
)

// SMTPConfig configuration for the SMTP sender
type SMTPConfig struct {
	Server      string // host:port, STARTTLS
	DialTimeout time.Duration
	TLSConfig   *tls.Config
}

// SMTPSender submits messages over SMTP with STARTTLS and XOAUTH2
type SMTPSender struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &SMTPSender{
		config: cfg,
		logger: logger.With("component", "smtp"),
	}
}

// Send delivers one HTML message from the account's mailbox
func (s *SMTPSender) Send(ctx context.Context, acc *models.Account, accessToken string, msg models.OutgoingMail) error {
	if acc.Email == "" {
		return ErrNoMailbox
	}

	body, err := ComposeMessage(acc.Email, msg, time.Now())
	if err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.config.Server)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	tlsConfig := s.config.TLSConfig
	if tlsConfig == nil {
		host, _, _ := net.SplitHostPort(s.config.Server)
		tlsConfig = &tls.Config{ServerName: host}
	}
	c, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	defer c.Close()

	if err := c.Auth(NewXOAuth2Client(acc.Email, accessToken)); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := c.Mail(acc.Email, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", "error", err)
	}
	return nil
}

// ComposeMessage renders a single-part HTML message
func ComposeMessage(from string, msg models.OutgoingMail, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(msg.HTMLBody)); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}
