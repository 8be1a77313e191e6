package public

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/mailhub/internal/database"
	"github.com/mixelka/mailhub/internal/filter"
	"github.com/mixelka/mailhub/pkg/models"
)

var (
	ErrRuleNotFound      = errors.New("share link not found")
	ErrRuleExpired       = errors.New("share link expired")
	ErrAccountUnresolved = errors.New("bound account not found")
	ErrQueryFailed       = errors.New("query failed")
)

// QueryError carries the underlying cause of a failed query
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", ErrQueryFailed, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryFailed, e.Err}
}

// RuleStore is the persistence the resolver reads
type RuleStore interface {
	GetRuleByCode(ctx context.Context, code string) (*models.AccessRule, error)
	GetGroupByID(ctx context.Context, id int64) (*models.FilterGroup, error)
	GetAccountByName(ctx context.Context, name string) (*models.Account, error)
	FindAccountByEmailFragment(ctx context.Context, fragment string) (*models.Account, error)
}

// Fetcher reads the newest messages of an account
type Fetcher interface {
	Fetch(ctx context.Context, acc *models.Account, limit int) ([]models.Message, error)
}

// Result is a resolved share ready for rendering
type Result struct {
	Rule    *models.AccessRule
	Account *models.Account
	Counts  filter.Counts
	Entries []filter.Entry
}

// Resolver turns share codes into filtered message views
type Resolver struct {
	store   RuleStore
	fetcher Fetcher
	engine  *filter.Engine
	now     func() time.Time
	logger  *slog.Logger
}

// NewResolver creates a new resolver
func NewResolver(store RuleStore, fetcher Fetcher, engine *filter.Engine, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		engine:  engine,
		now:     time.Now,
		logger:  logger.With("component", "public"),
	}
}

// Resolve looks up the rule for code and returns its filtered messages
func (r *Resolver) Resolve(ctx context.Context, code string) (*Result, error) {
	rule, err := r.store.GetRuleByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	group, err := r.group(ctx, rule)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	pred := filter.ResolvePredicate(rule, group)

	if rule.Expired(r.now()) {
		return nil, ErrRuleExpired
	}

	acc, err := r.account(ctx, rule.Name)
	if err != nil {
		return nil, err
	}

	counts := filter.ParseCounts(rule.FetchLimit)
	msgs, err := r.fetcher.Fetch(ctx, acc, counts.Fetch)
	if err != nil {
		r.logger.Warn("share query failed", "rule_id", rule.ID, "account_id", acc.ID, "error", err)
		return nil, &QueryError{Err: err}
	}

	return &Result{
		Rule:    rule,
		Account: acc,
		Counts:  counts,
		Entries: r.engine.Apply(msgs, pred, counts.Display),
	}, nil
}

// group returns the rule's filter group, or nil when it has none or it was deleted
func (r *Resolver) group(ctx context.Context, rule *models.AccessRule) (*models.FilterGroup, error) {
	if rule.GroupID == nil {
		return nil, nil
	}
	group, err := r.store.GetGroupByID(ctx, *rule.GroupID)
	if errors.Is(err, database.ErrNotFound) {
		r.logger.Debug("rule references missing group", "rule_id", rule.ID, "group_id", *rule.GroupID)
		return nil, nil
	}
	return group, err
}

// account resolves by exact name, then by a fragment of the email address
func (r *Resolver) account(ctx context.Context, name string) (*models.Account, error) {
	acc, err := r.store.GetAccountByName(ctx, name)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, &QueryError{Err: err}
	}

	acc, err = r.store.FindAccountByEmailFragment(ctx, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAccountUnresolved
	}
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	return acc, nil
}
