package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"

	"github.com/mixelka/mailhub/pkg/models"
)

// RefreshSkew is how long before expiry a cached token stops being reused
const RefreshSkew = 5 * time.Minute

var (
	// ErrMissingCredentials is returned when an account lacks refresh credentials
	ErrMissingCredentials = errors.New("account is missing refresh credentials")

	// ErrRefreshFailed is wrapped by every RefreshError
	ErrRefreshFailed = errors.New("token refresh failed")
)

// RefreshError carries the provider's description of a failed refresh
type RefreshError struct {
	Description string
	Err         error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRefreshFailed, e.Description)
}

func (e *RefreshError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRefreshFailed}
	}
	return []error{ErrRefreshFailed, e.Err}
}

// AccountWriter persists refreshed tokens
type AccountWriter interface {
	UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt int64) error
}

// Cache returns valid access tokens, refreshing them through the OAuth2 token endpoint
type Cache struct {
	store      AccountWriter
	endpoint   oauth2.Endpoint
	httpClient *http.Client
	now        func() time.Time
	group      singleflight.Group
	logger     *slog.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithHTTPClient overrides the client used for token requests
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = client
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a token cache. An empty tokenURL selects the Microsoft common tenant.
func NewCache(store AccountWriter, tokenURL string, logger *slog.Logger, opts ...Option) *Cache {
	endpoint := microsoft.AzureADEndpoint("common")
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	c := &Cache{
		store:      store,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		logger:     logger.With("component", "token"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccessToken returns a bearer token for the account, refreshing it when it
// is missing or expires within RefreshSkew. The account is updated in place.
func (c *Cache) AccessToken(ctx context.Context, acc *models.Account) (string, error) {
	now := c.now()
	if acc.AccessToken != "" && acc.ExpiresAt > now.Add(RefreshSkew).UnixMilli() {
		return acc.AccessToken, nil
	}
	if !acc.HasCredentials() {
		return "", ErrMissingCredentials
	}

	v, err, _ := c.group.Do(strconv.FormatInt(acc.ID, 10), func() (any, error) {
		return c.refresh(ctx, acc)
	})
	if err != nil {
		return "", err
	}

	tok := v.(*oauth2.Token)
	acc.AccessToken = tok.AccessToken
	acc.RefreshToken = tok.RefreshToken
	acc.ExpiresAt = tok.Expiry.UnixMilli()
	return tok.AccessToken, nil
}

func (c *Cache) refresh(ctx context.Context, acc *models.Account) (*oauth2.Token, error) {
	cfg := oauth2.Config{
		ClientID:     acc.ClientID,
		ClientSecret: acc.ClientSecret,
		Endpoint:     c.endpoint,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: acc.RefreshToken}).Token()
	if err != nil {
		c.logger.Warn("token refresh failed", "account_id", acc.ID, "error", describe(err))
		return nil, &RefreshError{Description: describe(err), Err: err}
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = acc.RefreshToken
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = c.now()
	}

	if err := c.store.UpdateAccountTokens(ctx, acc.ID, tok.AccessToken, tok.RefreshToken, tok.Expiry.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to store refreshed token: %w", err)
	}

	c.logger.Debug("token refreshed", "account_id", acc.ID, "expires_at", tok.Expiry)
	return tok, nil
}

func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorDescription != "":
			return re.ErrorDescription
		case re.ErrorCode != "":
			return re.ErrorCode
		case re.Response != nil:
			return re.Response.Status
		}
	}
	return err.Error()
}
