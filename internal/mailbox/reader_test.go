package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/mailhub/pkg/models"
)

type staticTokens struct {
	err error
}

func (s staticTokens) AccessToken(context.Context, *models.Account) (string, error) {
	return "tok", s.err
}

type fakeSource struct {
	mu      sync.Mutex
	folders map[models.Folder][]models.Message
	errs    map[models.Folder]error
	calls   []models.Folder
	limits  []int
}

func (s *fakeSource) FetchFolder(_ context.Context, _ *models.Account, token string, folder models.Folder, limit int) ([]models.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, folder)
	s.limits = append(s.limits, limit)
	s.mu.Unlock()
	if token != "tok" {
		return nil, errors.New("bad token")
	}
	if err := s.errs[folder]; err != nil {
		return nil, err
	}
	return s.folders[folder], nil
}

func at(minute int) time.Time {
	return time.Date(2024, 5, 1, 10, minute, 0, 0, time.UTC)
}

func newReader(src *fakeSource, tokens TokenSource) *Reader {
	return NewReader(tokens, src, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchMergesAndSorts(t *testing.T) {
	src := &fakeSource{folders: map[models.Folder][]models.Message{
		models.FolderInbox: {{ID: "i1", ReceivedAt: at(1)}, {ID: "i3", ReceivedAt: at(3)}},
		models.FolderJunk:  {{ID: "j2", ReceivedAt: at(2)}, {ID: "j3", ReceivedAt: at(3)}},
	}}

	msgs, err := newReader(src, staticTokens{}).Fetch(context.Background(), &models.Account{ID: 1}, 3)
	require.NoError(t, err)

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"i3", "j3", "j2"}, ids)
	assert.ElementsMatch(t, []int{3, 3}, src.limits)
}

func TestFetchDefaultLimit(t *testing.T) {
	src := &fakeSource{}
	_, err := newReader(src, staticTokens{}).Fetch(context.Background(), &models.Account{ID: 1}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{DefaultLimit, DefaultLimit}, src.limits)
}

func TestFetchAttemptsBothFolders(t *testing.T) {
	src := &fakeSource{errs: map[models.Folder]error{
		models.FolderInbox: errors.New("throttled"),
	}}

	_, err := newReader(src, staticTokens{}).Fetch(context.Background(), &models.Account{ID: 1}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "throttled")
	assert.ElementsMatch(t, []models.Folder{models.FolderInbox, models.FolderJunk}, src.calls)
}

func TestFetchJoinsBothErrors(t *testing.T) {
	inboxErr := errors.New("inbox down")
	junkErr := errors.New("junk down")
	src := &fakeSource{errs: map[models.Folder]error{
		models.FolderInbox: inboxErr,
		models.FolderJunk:  junkErr,
	}}

	_, err := newReader(src, staticTokens{}).Fetch(context.Background(), &models.Account{ID: 1}, 5)
	assert.ErrorIs(t, err, inboxErr)
	assert.ErrorIs(t, err, junkErr)
}

func TestFetchTokenError(t *testing.T) {
	tokenErr := fmt.Errorf("no creds")
	src := &fakeSource{}
	_, err := newReader(src, staticTokens{err: tokenErr}).Fetch(context.Background(), &models.Account{ID: 1}, 5)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, tokenErr)
	assert.Empty(t, src.calls)
}
