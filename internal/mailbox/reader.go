package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mixelka/mailhub/pkg/models"
)

// DefaultLimit is used when a non-positive limit is requested
const DefaultLimit = 20

// ErrFetchFailed is wrapped by every folder fetch failure
var ErrFetchFailed = errors.New("mailbox fetch failed")

// TokenSource yields a bearer token for an account
type TokenSource interface {
	AccessToken(ctx context.Context, acc *models.Account) (string, error)
}

// FolderSource lists the newest messages of one folder
type FolderSource interface {
	FetchFolder(ctx context.Context, acc *models.Account, accessToken string, folder models.Folder, limit int) ([]models.Message, error)
}

// Reader merges the inbox and junk folders of an account
type Reader struct {
	tokens  TokenSource
	source  FolderSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewReader creates a new mailbox reader
func NewReader(tokens TokenSource, source FolderSource, timeout time.Duration, logger *slog.Logger) *Reader {
	return &Reader{
		tokens:  tokens,
		source:  source,
		timeout: timeout,
		logger:  logger.With("component", "mailbox"),
	}
}

// Fetch returns up to limit messages from both folders, newest first
func (r *Reader) Fetch(ctx context.Context, acc *models.Account, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	token, err := r.tokens.AccessToken(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	folders := []models.Folder{models.FolderInbox, models.FolderJunk}
	results := make([][]models.Message, len(folders))
	errs := make([]error, len(folders))

	// Both folders are always attempted; the group never cancels early
	var g errgroup.Group
	for i, folder := range folders {
		g.Go(func() error {
			msgs, err := r.source.FetchFolder(ctx, acc, token, folder, limit)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", folder, err)
				return nil
			}
			results[i] = msgs
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("folder fetch failed", "account_id", acc.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	var merged []models.Message
	for _, msgs := range results {
		merged = append(merged, msgs...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.After(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
