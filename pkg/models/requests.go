package models

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRequest is returned when admin input fails validation
var ErrInvalidRequest = errors.New("invalid request")

const (
	defaultTaskSubject = "Remind"
	defaultFetchLimit  = "5"
	queryCodeLength    = 10
)

// reservedQueryCodes are path segments served by fixed HTTP routes
var reservedQueryCodes = []string{"healthz", "metrics"}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// AccountRequest validated input for creating an account
type AccountRequest struct {
	Name         string
	Email        string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// NewAccountRequest trims and validates account input
func NewAccountRequest(name, email, clientID, clientSecret, refreshToken string) (AccountRequest, error) {
	req := AccountRequest{
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: strings.TrimSpace(clientSecret),
		RefreshToken: strings.TrimSpace(refreshToken),
	}
	switch {
	case req.Name == "":
		return req, invalid("account name is required")
	case req.ClientID == "" || req.ClientSecret == "" || req.RefreshToken == "":
		return req, invalid("client_id, client_secret and refresh_token are required")
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return req, invalid("malformed email %q", req.Email)
		}
	}
	return req, nil
}

// AccountUpdate is a partial account edit, nil fields are kept
type AccountUpdate struct {
	Name         *string
	Email        *string
	ClientID     *string
	ClientSecret *string
	RefreshToken *string
}

// NewAccountUpdate trims and validates a partial account edit
func NewAccountUpdate(u AccountUpdate) (AccountUpdate, error) {
	for _, f := range []*string{u.Name, u.Email, u.ClientID, u.ClientSecret, u.RefreshToken} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	switch {
	case u.Name == nil && u.Email == nil && u.ClientID == nil && u.ClientSecret == nil && u.RefreshToken == nil:
		return u, invalid("nothing to update")
	case u.Name != nil && *u.Name == "":
		return u, invalid("account name cannot be empty")
	case u.ClientID != nil && *u.ClientID == "",
		u.ClientSecret != nil && *u.ClientSecret == "",
		u.RefreshToken != nil && *u.RefreshToken == "":
		return u, invalid("client_id, client_secret and refresh_token cannot be empty")
	}
	if u.Email != nil && *u.Email != "" {
		if _, err := mail.ParseAddress(*u.Email); err != nil {
			return u, invalid("malformed email %q", *u.Email)
		}
	}
	return u, nil
}

// Apply writes the set fields into acc. Changed credentials drop the cached
// access token so the next use refreshes with them.
func (u AccountUpdate) Apply(acc *Account) {
	set := func(dst *string, src *string) bool {
		if src == nil || *dst == *src {
			return false
		}
		*dst = *src
		return true
	}
	set(&acc.Name, u.Name)
	set(&acc.Email, u.Email)
	changed := set(&acc.ClientID, u.ClientID)
	changed = set(&acc.ClientSecret, u.ClientSecret) || changed
	changed = set(&acc.RefreshToken, u.RefreshToken) || changed
	if changed {
		acc.AccessToken = ""
		acc.ExpiresAt = 0
	}
}

// TaskInput is the raw admin payload for a send task
type TaskInput struct {
	AccountID   int64
	To          string
	Subject     string
	Content     string
	DelayConfig string
	Loop        bool
	BaseDate    time.Time // First run, zero means now
}

// TaskRequest validated send task ready for storage
type TaskRequest struct {
	AccountID   int64
	To          string
	Subject     string
	Content     string
	DelayConfig string
	Loop        bool
	NextRunAt   int64
}

// NewTaskRequest validates a task payload and fills admin defaults
func NewTaskRequest(in TaskInput, now time.Time) (TaskRequest, error) {
	req := TaskRequest{
		AccountID:   in.AccountID,
		To:          strings.TrimSpace(in.To),
		Subject:     strings.TrimSpace(in.Subject),
		Content:     in.Content,
		DelayConfig: strings.TrimSpace(in.DelayConfig),
		Loop:        in.Loop,
	}
	if req.AccountID <= 0 {
		return req, invalid("account id is required")
	}
	if req.To == "" {
		return req, invalid("recipient is required")
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		return req, invalid("malformed recipient %q", req.To)
	}
	if _, err := ParseDelay(req.DelayConfig); err != nil {
		return req, invalid("%v", err)
	}
	if req.Subject == "" {
		req.Subject = defaultTaskSubject
	}
	if strings.TrimSpace(req.Content) == "" {
		req.Content = "Reminder of current time: " + now.UTC().Format(time.RFC3339)
	}
	if in.BaseDate.IsZero() {
		req.NextRunAt = now.UnixMilli()
	} else {
		req.NextRunAt = in.BaseDate.UnixMilli()
	}
	return req, nil
}

// RuleInput is the raw admin payload for an access rule
type RuleInput struct {
	Name          string
	Alias         string
	QueryCode     string
	FetchLimit    string
	ValidDays     int // Positive value sets an expiry, otherwise permanent
	MatchSender   string
	MatchReceiver string
	MatchBody     string
	GroupID       *int64
}

// RuleRequest validated access rule ready for storage
type RuleRequest struct {
	Name          string
	Alias         string
	QueryCode     string
	FetchLimit    string
	ValidUntil    *int64
	MatchSender   string
	MatchReceiver string
	MatchBody     string
	GroupID       *int64
}

// NewRuleRequest validates a rule payload, generating a share code when absent
func NewRuleRequest(in RuleInput, now time.Time) (RuleRequest, error) {
	req := RuleRequest{
		Name:          strings.TrimSpace(in.Name),
		Alias:         strings.TrimSpace(in.Alias),
		QueryCode:     strings.TrimSpace(in.QueryCode),
		FetchLimit:    strings.TrimSpace(in.FetchLimit),
		MatchSender:   strings.TrimSpace(in.MatchSender),
		MatchReceiver: strings.TrimSpace(in.MatchReceiver),
		MatchBody:     strings.TrimSpace(in.MatchBody),
		GroupID:       in.GroupID,
	}
	if req.Name == "" {
		return req, invalid("bound account name is required")
	}
	if strings.ContainsAny(req.QueryCode, "/?# ") {
		return req, invalid("query code %q contains reserved characters", req.QueryCode)
	}
	for _, reserved := range reservedQueryCodes {
		if strings.EqualFold(req.QueryCode, reserved) {
			return req, invalid("query code %q is reserved", req.QueryCode)
		}
	}
	if req.QueryCode == "" {
		req.QueryCode = GenerateQueryCode()
	}
	if req.FetchLimit == "" {
		req.FetchLimit = defaultFetchLimit
	}
	if in.ValidDays > 0 {
		until := now.Add(time.Duration(in.ValidDays) * 24 * time.Hour).UnixMilli()
		req.ValidUntil = &until
	}
	if req.GroupID != nil && *req.GroupID <= 0 {
		req.GroupID = nil
	}
	return req, nil
}

// GenerateQueryCode returns a random upper-case share code
func GenerateQueryCode() string {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(code[:queryCodeLength])
}

// GroupRequest validated input for a filter group
type GroupRequest struct {
	Name          string
	MatchSender   string
	MatchReceiver string
	MatchBody     string
}

// NewGroupRequest validates a filter group payload
func NewGroupRequest(name, sender, receiver, body string) (GroupRequest, error) {
	req := GroupRequest{
		Name:          strings.TrimSpace(name),
		MatchSender:   strings.TrimSpace(sender),
		MatchReceiver: strings.TrimSpace(receiver),
		MatchBody:     strings.TrimSpace(body),
	}
	if req.Name == "" {
		return req, invalid("group name is required")
	}
	return req, nil
}
