package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/auth"
	"github.com/dmitrijs2005/fintrack/internal/cryptox"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/repositories/metadata"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/dmitrijs2005/fintrack/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var fastParams = cryptox.HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// world is one database shared by any number of clients.
type world struct {
	engine storage.Engine
	clock  *fakeClock
	lock   *WriteLock
}

func newWorld(t *testing.T) *world {
	t.Helper()
	engine := memstore.New(storage.Default)
	require.NoError(t, engine.Init(context.Background()))
	return &world{
		engine: engine,
		clock:  &fakeClock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		lock:   &WriteLock{},
	}
}

func (w *world) options() []Option {
	return []Option{WithClock(w.clock.Now), WithHashParams(fastParams), WithWriteLock(w.lock)}
}

// client is one front end: its own session cache and services.
type client struct {
	repo         *metadata.SQLiteRepository
	cache        *metadata.SealedStore
	identity     *IdentityManager
	transactions *TransactionService
	categories   *CategoryService
	budgets      *BudgetService
}

func (w *world) newClient(t *testing.T) *client {
	t.Helper()
	repo, closeFn, err := metadata.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	return w.clientWithCache(repo)
}

func (w *world) clientWithCache(repo *metadata.SQLiteRepository) *client {
	cache := metadata.NewSealedStore(repo, cryptox.DeriveKey(testSecret, "cache"))
	tokens := auth.NewTokens([]byte(testSecret), w.clock.Now)
	id := NewIdentityManager(w.engine, cache, tokens, w.options()...)
	return &client{
		repo:         repo,
		cache:        cache,
		identity:     id,
		transactions: NewTransactionService(w.engine, id, w.options()...),
		categories:   NewCategoryService(w.engine, id, w.options()...),
		budgets:      NewBudgetService(w.engine, id, w.options()...),
	}
}

// signedIn registers username and logs the client in.
func (w *world) signedIn(t *testing.T, username string) *client {
	t.Helper()
	c := w.newClient(t)
	ctx := context.Background()
	_, err := c.identity.Register(ctx, RegisterRequest{Username: username, Password: []byte("Password1!")})
	require.NoError(t, err)
	_, err = c.identity.Login(ctx, username, []byte("Password1!"))
	require.NoError(t, err)
	return c
}

// category returns the caller's category with the given name.
func (c *client) category(t *testing.T, name string) *models.Category {
	t.Helper()
	list, err := c.categories.ListCategories(context.Background(), CategoryFilter{})
	require.NoError(t, err)
	for i := range list {
		if list[i].Name == name {
			return &list[i]
		}
	}
	t.Fatalf("category %q not found", name)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}
