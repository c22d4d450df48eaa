package memstore

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/dmitrijs2005/fintrack/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Engine {
		return New(storage.Default)
	})
}

func TestNotInitialized(t *testing.T) {
	s := New(storage.Default)
	ctx := context.Background()

	_, err := s.Get(ctx, storage.StoreUsers, "u1", &struct{}{})
	require.ErrorIs(t, err, common.ErrNotInitialized)

	err = s.ExecuteTransaction(ctx, []string{storage.StoreUsers}, storage.ReadOnly,
		func(context.Context, storage.Ops) error { return nil })
	require.ErrorIs(t, err, common.ErrNotInitialized)
}

func TestReturnedRowsAreCopies(t *testing.T) {
	s := New(storage.Default)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Add(ctx, storage.StoreUsers, map[string]any{"id": "u1", "username": "alice"}))

	rows, err := s.GetAll(ctx, storage.StoreUsers)
	require.NoError(t, err)
	for i := range rows[0] {
		rows[0][i] = ' '
	}

	rows, err = s.GetAll(ctx, storage.StoreUsers)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"u1","username":"alice"}`, string(rows[0]))
}

func TestCompare_Ordering(t *testing.T) {
	require.Negative(t, compare(nil, false))
	require.Negative(t, compare(false, true))
	require.Negative(t, compare(true, 1.0))
	require.Negative(t, compare(1.0, 2.0))
	require.Negative(t, compare(99.0, "a"))
	require.Zero(t, compare("b", "b"))
	require.Positive(t, compare("b", "a"))
	require.Negative(t, compareTuple([]any{"u1", "2025-01-01"}, []any{"u1", "2025-01-02"}))
}
