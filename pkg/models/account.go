package models

import "time"

// Account is a provider mail account authorized by an OAuth2 refresh token
type Account struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`  // Human-facing key used by access rules
	Email        string `db:"email"` // Mailbox address, may be empty
	ClientID     string `db:"client_id"`
	ClientSecret string `db:"client_secret"`
	RefreshToken string `db:"refresh_token"`
	AccessToken  string `db:"access_token"` // Cached bearer token
	ExpiresAt    int64  `db:"expires_at"`   // Access token expiry, Unix ms
	Enabled      bool   `db:"enabled"`
	CreatedAt    int64  `db:"created_at"`
}

// TokenExpiry returns the cached access token expiry as time
func (a *Account) TokenExpiry() time.Time {
	return time.UnixMilli(a.ExpiresAt)
}

// HasCredentials reports whether the account can perform a token refresh
func (a *Account) HasCredentials() bool {
	return a.RefreshToken != "" && a.ClientID != "" && a.ClientSecret != ""
}
