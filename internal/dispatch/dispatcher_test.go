package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/mailhub/pkg/models"
)

type fakeTokens struct {
	err error
}

func (f fakeTokens) AccessToken(context.Context, *models.Account) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

type fakeSender struct {
	sent []models.OutgoingMail
	err  error
	wait time.Duration
}

func (f *fakeSender) Send(ctx context.Context, _ *models.Account, token string, mail models.OutgoingMail) error {
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, mail)
	return nil
}

func newDispatcher(tokens TokenSource, sender Sender, timeout time.Duration) *Dispatcher {
	return NewDispatcher(tokens, sender, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendDefaults(t *testing.T) {
	sender := &fakeSender{}
	res := newDispatcher(fakeTokens{}, sender, time.Second).Send(context.Background(), &models.Account{ID: 1}, "bob@example.com", "  ", "")

	assert.Equal(t, Result{OK: true}, res)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, DefaultSubject, sender.sent[0].Subject)
	assert.Equal(t, DefaultBody, sender.sent[0].HTMLBody)
	assert.Equal(t, "bob@example.com", sender.sent[0].To)
}

func TestSendTokenFailure(t *testing.T) {
	sender := &fakeSender{}
	res := newDispatcher(fakeTokens{err: errors.New("invalid_grant")}, sender, time.Second).
		Send(context.Background(), &models.Account{ID: 1}, "bob@example.com", "s", "b")

	assert.False(t, res.OK)
	assert.Equal(t, "invalid_grant", res.Error)
	assert.Empty(t, sender.sent)
}

func TestSendUpstreamFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("Graph API error: denied (status 403)")}
	res := newDispatcher(fakeTokens{}, sender, time.Second).
		Send(context.Background(), &models.Account{ID: 1}, "bob@example.com", "s", "b")

	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "403")
}

func TestSendTimeout(t *testing.T) {
	sender := &fakeSender{wait: time.Second}
	res := newDispatcher(fakeTokens{}, sender, 20*time.Millisecond).
		Send(context.Background(), &models.Account{ID: 1}, "bob@example.com", "s", "b")

	assert.False(t, res.OK)
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Error)
}
