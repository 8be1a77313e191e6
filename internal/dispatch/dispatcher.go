package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/mailhub/pkg/models"
)

const (
	// DefaultSubject replaces a blank subject
	DefaultSubject = "No Subject"
	// DefaultBody replaces a blank body, the provider rejects empty content
	DefaultBody = " "
)

// Result is the outcome of one send attempt
type Result struct {
	OK    bool
	Error string
}

// TokenSource yields a bearer token for an account
type TokenSource interface {
	AccessToken(ctx context.Context, acc *models.Account) (string, error)
}

// Sender submits one message with a bearer token
type Sender interface {
	Send(ctx context.Context, acc *models.Account, accessToken string, mail models.OutgoingMail) error
}

// Dispatcher sends single messages on behalf of accounts
type Dispatcher struct {
	tokens  TokenSource
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(tokens TokenSource, sender Sender, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:  tokens,
		sender:  sender,
		timeout: timeout,
		logger:  logger.With("component", "dispatch"),
	}
}

// Send delivers one message. Failures are reported in the result, never returned.
func (d *Dispatcher) Send(ctx context.Context, acc *models.Account, to, subject, htmlBody string) Result {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	if htmlBody == "" {
		htmlBody = DefaultBody
	}

	token, err := d.tokens.AccessToken(ctx, acc)
	if err != nil {
		d.logger.Warn("failed to get access token", "account_id", acc.ID, "error", err)
		return Result{Error: err.Error()}
	}

	mail := models.OutgoingMail{To: to, Subject: subject, HTMLBody: htmlBody}
	if err := d.sender.Send(ctx, acc, token, mail); err != nil {
		d.logger.Warn("failed to send message", "account_id", acc.ID, "to", to, "error", err)
		return Result{Error: err.Error()}
	}

	d.logger.Info("message sent", "account_id", acc.ID, "to", to)
	return Result{OK: true}
}
