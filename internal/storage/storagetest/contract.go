// Package storagetest holds the behavioural tests every storage.Engine
// must pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       *string    `json:"email,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type txn struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	CategoryID  string    `json:"categoryId"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Date        time.Time `json:"date"`
	IsRecurring bool      `json:"isRecurring"`
	Status      string    `json:"status"`
}

type period struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

type budget struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId"`
	Period     period `json:"period"`
	Status     string `json:"status"`
}

func strPtr(s string) *string { return &s }

func day(d int) time.Time {
	return time.Date(2025, 1, d, 10, 0, 0, 0, time.UTC)
}

// Run executes the contract against engines produced by newEngine. Each
// subtest gets a fresh, initialized engine.
func Run(t *testing.T, newEngine func(t *testing.T) storage.Engine) {
	ctx := context.Background()

	fresh := func(t *testing.T) storage.Engine {
		t.Helper()
		e := newEngine(t)
		require.NoError(t, e.Init(ctx))
		t.Cleanup(func() { _ = e.Close() })
		return e
	}

	t.Run("InitIsIdempotent", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, e.Init(ctx))
			}()
		}
		wg.Wait()

		var got user
		found, err := e.Get(ctx, storage.StoreUsers, "u1", &got)
		require.NoError(t, err)
		require.True(t, found, "Init must not drop data")
	})

	t.Run("PutThenGetRoundTrips", func(t *testing.T) {
		e := fresh(t)
		in := user{ID: "u1", Username: "alice", Email: strPtr("a@example.com"), CreatedAt: day(1)}
		require.NoError(t, e.Put(ctx, storage.StoreUsers, in))

		var got user
		found, err := e.Get(ctx, storage.StoreUsers, "u1", &got)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, in, got)

		in.Username = "alice2"
		require.NoError(t, e.Put(ctx, storage.StoreUsers, in))
		_, err = e.Get(ctx, storage.StoreUsers, "u1", &got)
		require.NoError(t, err)
		require.Equal(t, "alice2", got.Username)

		n, err := e.Count(ctx, storage.StoreUsers, nil)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("GetMissingIsNotAnError", func(t *testing.T) {
		e := fresh(t)
		var got user
		found, err := e.Get(ctx, storage.StoreUsers, "nope", &got)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Delete(ctx, storage.StoreUsers, "nope"))

		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}))
		require.NoError(t, e.Delete(ctx, storage.StoreUsers, "u1"))
		found, err := e.Get(ctx, storage.StoreUsers, "u1", &user{})
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("AddRejectsDuplicateKey", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}))
		err := e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "bob"})
		require.ErrorIs(t, err, common.ErrConstraint)
	})

	t.Run("UniqueIndexes", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice", Email: strPtr("a@x.io")}))

		err := e.Add(ctx, storage.StoreUsers, user{ID: "u2", Username: "alice"})
		require.ErrorIs(t, err, common.ErrConstraint)

		err = e.Add(ctx, storage.StoreUsers, user{ID: "u3", Username: "carol", Email: strPtr("a@x.io")})
		require.ErrorIs(t, err, common.ErrConstraint)

		// email is optional: many users without one
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u4", Username: "dave"}))
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u5", Username: "erin"}))

		// an update may collide too
		err = e.Put(ctx, storage.StoreUsers, user{ID: "u4", Username: "alice"})
		require.ErrorIs(t, err, common.ErrConstraint)

		// re-putting a record with its own unique values is fine
		require.NoError(t, e.Put(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice", Email: strPtr("a@x.io")}))
	})

	t.Run("QueryByIndex", func(t *testing.T) {
		e := fresh(t)
		seedTransactions(t, e)

		rows, err := e.QueryByIndex(ctx, storage.StoreTransactions, "userId", "u1")
		require.NoError(t, err)
		require.Len(t, rows, 4)

		rows, err = e.QueryByIndex(ctx, storage.StoreTransactions, "userId_categoryId", "u1", "food")
		require.NoError(t, err)
		got, err := storage.DecodeAll[txn](rows)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, tr := range got {
			assert.Equal(t, "food", tr.CategoryID)
		}

		rows, err = e.QueryByIndex(ctx, storage.StoreTransactions, "amount", 300)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		rows, err = e.QueryByIndex(ctx, storage.StoreTransactions, "isRecurring", true)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		rows, err = e.QueryByIndex(ctx, storage.StoreTransactions, "userId_type_date", "u1", "expense", day(2))
		require.NoError(t, err)
		require.Len(t, rows, 1)

		_, err = e.QueryByIndex(ctx, storage.StoreTransactions, "userId_categoryId", "u1")
		require.ErrorIs(t, err, common.ErrStorage)

		_, err = e.QueryByIndex(ctx, storage.StoreTransactions, "nope", "u1")
		require.ErrorIs(t, err, common.ErrUnknownIndex)

		_, err = e.QueryByIndex(ctx, "nope", "userId", "u1")
		require.ErrorIs(t, err, common.ErrUnknownStore)
	})

	t.Run("QueryByIndexNullMatchesMissing", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}))
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u2", Username: "bob", Email: strPtr("b@x.io")}))

		rows, err := e.QueryByIndex(ctx, storage.StoreUsers, "email", nil)
		require.NoError(t, err)
		got, err := storage.DecodeAll[user](rows)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "u1", got[0].ID)
	})

	t.Run("QueryByRange", func(t *testing.T) {
		e := fresh(t)
		seedTransactions(t, e)

		rows, err := e.QueryByRange(ctx, storage.StoreTransactions, "userId_date",
			storage.Between([]any{"u1", day(2)}, []any{"u1", day(3)}))
		require.NoError(t, err)
		got, err := storage.DecodeAll[txn](rows)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "t2", got[0].ID, "rows come back in index order")
		require.Equal(t, "t3", got[1].ID)

		rows, err = e.QueryByRange(ctx, storage.StoreTransactions, "userId_date",
			storage.KeyRange{Lower: []any{"u1", day(2)}, Upper: []any{"u1", day(3)}, LowerOpen: true, UpperOpen: true})
		require.NoError(t, err)
		require.Len(t, rows, 0)

		rows, err = e.QueryByRange(ctx, storage.StoreTransactions, "amount", storage.AtLeast(false, 200))
		require.NoError(t, err)
		require.Len(t, rows, 3)

		rows, err = e.QueryByRange(ctx, storage.StoreTransactions, "amount", storage.AtMost(true, 200))
		require.NoError(t, err)
		require.Len(t, rows, 2)

		rows, err = e.QueryByRange(ctx, storage.StoreTransactions, "userId_date", storage.Only("u2"))
		require.NoError(t, err)
		require.Len(t, rows, 1, "a bound may be a prefix of a compound index")

		rows, err = e.QueryByRange(ctx, storage.StoreBudgets, "period_startDate", storage.AtMost(false, day(1)))
		require.NoError(t, err)
		require.Len(t, rows, 0)
	})

	t.Run("NestedKeyPaths", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreBudgets, budget{
			ID: "b1", UserID: "u1", CategoryID: "food", Status: "active",
			Period: period{StartDate: day(1), EndDate: day(31)},
		}))

		rows, err := e.QueryByRange(ctx, storage.StoreBudgets, "period_startDate", storage.AtMost(false, day(15)))
		require.NoError(t, err)
		require.Len(t, rows, 1)

		rows, err = e.QueryByIndex(ctx, storage.StoreBudgets, "period_endDate", day(31))
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})

	t.Run("Count", func(t *testing.T) {
		e := fresh(t)
		seedTransactions(t, e)

		n, err := e.Count(ctx, storage.StoreTransactions, nil)
		require.NoError(t, err)
		require.Equal(t, 5, n)

		n, err = e.Count(ctx, storage.StoreTransactions, &storage.IndexQuery{Index: "type", Values: []any{"income"}})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		r := storage.AtLeast(true, 100)
		n, err = e.Count(ctx, storage.StoreTransactions, &storage.IndexQuery{Index: "amount", Range: &r})
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		e := fresh(t)
		err := e.ExecuteTransaction(ctx, []string{storage.StoreUsers, storage.StoreTransactions}, storage.ReadWrite,
			func(ctx context.Context, tx storage.Ops) error {
				if err := tx.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}); err != nil {
					return err
				}
				if err := tx.Add(ctx, storage.StoreTransactions, txn{ID: "t1", UserID: "u1", Amount: 10, Date: day(1)}); err != nil {
					return err
				}
				// reads inside the transaction see its own writes
				rows, err := tx.QueryByIndex(ctx, storage.StoreTransactions, "userId", "u1")
				if err != nil {
					return err
				}
				if len(rows) != 1 {
					return errors.New("own write not visible")
				}
				return nil
			})
		require.NoError(t, err)

		n, err := e.Count(ctx, storage.StoreTransactions, nil)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("TransactionRollsBackOnError", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u0", Username: "taken"}))
		boom := errors.New("boom")

		err := e.ExecuteTransaction(ctx, []string{storage.StoreUsers, storage.StoreTransactions}, storage.ReadWrite,
			func(ctx context.Context, tx storage.Ops) error {
				require.NoError(t, tx.Add(ctx, storage.StoreTransactions, txn{ID: "t1", UserID: "u1", Amount: 10, Date: day(1)}))
				require.NoError(t, tx.Delete(ctx, storage.StoreUsers, "u0"))
				return boom
			})
		require.ErrorIs(t, err, common.ErrTransactionAborted)
		require.ErrorIs(t, err, boom)

		n, err := e.Count(ctx, storage.StoreTransactions, nil)
		require.NoError(t, err)
		require.Equal(t, 0, n)
		found, err := e.Get(ctx, storage.StoreUsers, "u0", &user{})
		require.NoError(t, err)
		require.True(t, found)
	})

	t.Run("TransactionConstraintAborts", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u0", Username: "alice"}))

		err := e.ExecuteTransaction(ctx, []string{storage.StoreUsers, storage.StoreCategories}, storage.ReadWrite,
			func(ctx context.Context, tx storage.Ops) error {
				if err := tx.Add(ctx, storage.StoreCategories, map[string]any{"id": "c1", "userId": "u1"}); err != nil {
					return err
				}
				return tx.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"})
			})
		require.ErrorIs(t, err, common.ErrTransactionAborted)
		require.ErrorIs(t, err, common.ErrConstraint)

		n, err := e.Count(ctx, storage.StoreCategories, nil)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("TransactionScope", func(t *testing.T) {
		e := fresh(t)

		err := e.ExecuteTransaction(ctx, []string{storage.StoreUsers}, storage.ReadWrite,
			func(ctx context.Context, tx storage.Ops) error {
				_, err := tx.GetAll(ctx, storage.StoreBudgets)
				return err
			})
		require.ErrorIs(t, err, common.ErrUnknownStore)

		err = e.ExecuteTransaction(ctx, []string{storage.StoreUsers}, storage.ReadOnly,
			func(ctx context.Context, tx storage.Ops) error {
				if _, err := tx.GetAll(ctx, storage.StoreUsers); err != nil {
					return err
				}
				return tx.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"})
			})
		require.ErrorIs(t, err, common.ErrReadOnly)

		err = e.ExecuteTransaction(ctx, []string{"nope"}, storage.ReadOnly,
			func(ctx context.Context, tx storage.Ops) error { return nil })
		require.ErrorIs(t, err, common.ErrUnknownStore)
	})

	t.Run("ClearEmptiesOneStore", func(t *testing.T) {
		e := fresh(t)
		seedTransactions(t, e)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}))

		require.NoError(t, e.Clear(ctx, storage.StoreTransactions))

		rows, err := e.GetAll(ctx, storage.StoreTransactions)
		require.NoError(t, err)
		require.Empty(t, rows)
		rows, err = e.GetAll(ctx, storage.StoreUsers)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})

	t.Run("DeleteDatabase", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.Add(ctx, storage.StoreUsers, user{ID: "u1", Username: "alice"}))

		require.NoError(t, e.DeleteDatabase(ctx))

		_, err := e.GetAll(ctx, storage.StoreUsers)
		require.ErrorIs(t, err, common.ErrNotInitialized)

		require.NoError(t, e.Init(ctx))
		rows, err := e.GetAll(ctx, storage.StoreUsers)
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("RecordsWithoutKeyAreRejected", func(t *testing.T) {
		e := fresh(t)
		err := e.Add(ctx, storage.StoreUsers, map[string]any{"username": "nokey"})
		require.ErrorIs(t, err, common.ErrStorage)
	})
}

func seedTransactions(t *testing.T, e storage.Engine) {
	t.Helper()
	ctx := context.Background()
	for _, tr := range []txn{
		{ID: "t1", UserID: "u1", CategoryID: "food", Type: "expense", Amount: 100, Date: day(1), Status: "cleared"},
		{ID: "t2", UserID: "u1", CategoryID: "food", Type: "expense", Amount: 200, Date: day(2), Status: "cleared"},
		{ID: "t3", UserID: "u1", CategoryID: "food", Type: "expense", Amount: 300, Date: day(3), Status: "pending"},
		{ID: "t4", UserID: "u1", CategoryID: "salary", Type: "income", Amount: 5000, Date: day(4), Status: "cleared", IsRecurring: true},
		{ID: "t5", UserID: "u2", CategoryID: "food", Type: "expense", Amount: 50, Date: day(2), Status: "cleared"},
	} {
		require.NoError(t, e.Add(ctx, storage.StoreTransactions, tr))
	}
}
