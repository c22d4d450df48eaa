// Package services contains the application services of the finance
// tracker: identity and session handling, the transaction ledger with its
// derived aggregates, categories and budgets.
//
// Services are safe for concurrent use. Every write that touches ledger
// aggregates runs under a single writer lock and inside one storage
// transaction, so category usage and budget tracking never observe a
// half-applied change.
package services

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/cryptox"
	"github.com/dmitrijs2005/fintrack/internal/logging"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/timex"
	"github.com/google/uuid"
)

// DefaultSessionTimeout applies when a user has no timeout of their own.
const DefaultSessionTimeout = 60 * time.Minute

// defaultCurrency is used when neither the request nor the user's
// preferences name one.
const defaultCurrency = "IDR"

// Authenticator reports who is calling. IdentityManager implements it.
type Authenticator interface {
	IsAuthenticated() bool
	CurrentUser() (*models.User, bool)
}

// WriteLock serializes ledger writes. Services that modify transactions,
// categories or budgets must share one WriteLock.
type WriteLock struct {
	sync.Mutex
}

type options struct {
	now            func() time.Time
	log            logging.Logger
	hash           cryptox.HashParams
	sessionTimeout time.Duration
	lock           *WriteLock
}

// Option configures a service constructor.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithHashParams sets the argon2id cost used for new password hashes.
func WithHashParams(p cryptox.HashParams) Option {
	return func(o *options) { o.hash = p }
}

// WithSessionTimeout sets the fallback session lifetime.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *options) { o.sessionTimeout = d }
}

// WithWriteLock makes the service share l with other services.
func WithWriteLock(l *WriteLock) Option {
	return func(o *options) { o.lock = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now:            time.Now,
		log:            logging.Nop(),
		hash:           cryptox.DefaultHashParams,
		sessionTimeout: DefaultSessionTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lock == nil {
		o.lock = &WriteLock{}
	}
	return o
}

// stamp returns the current time in the form records are stored with.
func (o options) stamp() time.Time {
	return timex.Stamp(o.now())
}

// requireUser returns the calling user or common.ErrSessionExpired.
func requireUser(a Authenticator) (*models.User, error) {
	if !a.IsAuthenticated() {
		return nil, common.ErrSessionExpired
	}
	u, ok := a.CurrentUser()
	if !ok {
		return nil, common.ErrSessionExpired
	}
	return u, nil
}

func newID() string {
	return uuid.NewString()
}

func userCurrency(u *models.User) string {
	if u.Preferences.Currency != "" {
		return u.Preferences.Currency
	}
	return defaultCurrency
}

func ptr[T any](v T) *T {
	return &v
}
