package trade

import (
	"sort"
	"sync"

	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/interfaces"
	"github.com/zillionare/backtesting/internal/models"
)

// Registry maps access tokens to live accounts. Account names and tokens
// are both unique; the registry lock covers insert and delete only, and
// each account serializes its own operations.
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]*Account
	byName  map[string]*Account
	feed    interfaces.MarketFeed
	cal     *Calendar
	cfg     *common.Config
	logger  *common.Logger
}

// NewRegistry creates an empty account registry.
func NewRegistry(feed interfaces.MarketFeed, cal *Calendar, cfg *common.Config, logger *common.Logger) *Registry {
	return &Registry{
		byToken: make(map[string]*Account),
		byName:  make(map[string]*Account),
		feed:    feed,
		cal:     cal,
		cfg:     cfg,
		logger:  logger,
	}
}

// Create registers a new account. Both the name and the token must be
// unused.
func (r *Registry) Create(p AccountParams) (*Account, error) {
	if p.Name == "" || p.Token == "" {
		return nil, models.BadParam(models.CodeBadParam, "account name and token are required")
	}
	if p.Principal <= 0 {
		return nil, models.BadParam(models.CodeBadParam, "principal must be positive, got %v", p.Principal)
	}
	if !p.Start.Before(p.End) && !models.SameDate(p.Start, p.End) {
		return nil, models.BadParam(models.CodeBadDatetime, "start %s after end %s",
			p.Start.Format(models.DateLayout), p.End.Format(models.DateLayout))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[p.Name]; ok {
		return nil, models.AccountErr(models.CodeAccountExists, "account %s already exists", p.Name)
	}
	if _, ok := r.byToken[p.Token]; ok {
		return nil, models.AccountErr(models.CodeAccountExists, "token already in use")
	}

	acct := NewAccount(p, r.feed, r.cal, r.cfg, r.logger)
	r.byName[p.Name] = acct
	r.byToken[p.Token] = acct
	r.logger.Info().Str("account", p.Name).Float64("principal", p.Principal).Msg("Account created")
	return acct, nil
}

// Attach registers a restored account, replacing any live account with the
// same name or token.
func (r *Registry) Attach(acct *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byName[acct.Name()]; ok {
		delete(r.byToken, old.Token())
	}
	if old, ok := r.byToken[acct.Token()]; ok {
		delete(r.byName, old.Name())
	}
	r.byName[acct.Name()] = acct
	r.byToken[acct.Token()] = acct
}

// Get resolves an account by its access token.
func (r *Registry) Get(token string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.byToken[token]
	if !ok {
		return nil, models.AccountErr(models.CodeNotFound, "no account for token")
	}
	return acct, nil
}

// GetByName resolves an account by name.
func (r *Registry) GetByName(name string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.byName[name]
	if !ok {
		return nil, models.AccountErr(models.CodeNotFound, "account %s not found", name)
	}
	return acct, nil
}

// Delete removes the named account.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.byName[name]
	if !ok {
		return models.AccountErr(models.CodeNotFound, "account %s not found", name)
	}
	delete(r.byName, name)
	delete(r.byToken, acct.Token())
	r.logger.Info().Str("account", name).Msg("Account deleted")
	return nil
}

// DeleteAll removes every account and returns how many were removed.
func (r *Registry) DeleteAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.byName)
	r.byName = make(map[string]*Account)
	r.byToken = make(map[string]*Account)
	if n > 0 {
		r.logger.Info().Int("count", n).Msg("All accounts deleted")
	}
	return n
}

// List returns the registered account names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
