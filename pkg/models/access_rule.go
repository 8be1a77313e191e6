package models

import "time"

// AccessRule is a public share bound to an account by name
type AccessRule struct {
	ID            int64  `db:"id"`
	Name          string `db:"name"` // Account name, falls back to email substring
	Alias         string `db:"alias"`
	QueryCode     string `db:"query_code"`
	FetchLimit    string `db:"fetch_limit"` // "fetch-display" or a single count
	ValidUntil    *int64 `db:"valid_until"` // Unix ms, nil means no expiry
	MatchSender   string `db:"match_sender"`
	MatchReceiver string `db:"match_receiver"`
	MatchBody     string `db:"match_body"` // Alternatives separated by |
	GroupID       *int64 `db:"group_id"`
	CreatedAt     int64  `db:"created_at"`
}

// Expired reports whether the rule has an expiry that lies before now
func (r *AccessRule) Expired(now time.Time) bool {
	return r.ValidUntil != nil && now.UnixMilli() > *r.ValidUntil
}

// FilterGroup is a named predicate bundle shared by rules
type FilterGroup struct {
	ID            int64  `db:"id"`
	Name          string `db:"name"`
	MatchSender   string `db:"match_sender"`
	MatchReceiver string `db:"match_receiver"`
	MatchBody     string `db:"match_body"`
	CreatedAt     int64  `db:"created_at"`
}
