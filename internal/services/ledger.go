package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/storage"
)

// ledger reads transactions through ops, which is either the engine or a
// transaction handle. Soft-deleted rows are hidden unless a method says
// otherwise.
type ledger struct {
	ops storage.Ops
}

// get returns the live transaction id, or common.ErrNotFound.
func (l ledger) get(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := l.getAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return t, nil
}

// getAny is get including soft-deleted rows.
func (l ledger) getAny(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	found, err := l.ops.Get(ctx, storage.StoreTransactions, id, &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return &t, nil
}

func (l ledger) byUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := l.ops.QueryByIndex(ctx, storage.StoreTransactions, "userId", userID)
	if err != nil {
		return nil, err
	}
	return decodeLive(rows)
}

func (l ledger) byCategory(ctx context.Context, userID, categoryID string) ([]models.Transaction, error) {
	rows, err := l.ops.QueryByIndex(ctx, storage.StoreTransactions, "userId_categoryId", userID, categoryID)
	if err != nil {
		return nil, err
	}
	return decodeLive(rows)
}

// byDates returns the user's transactions dated within [start, end]. Either
// bound may be nil.
func (l ledger) byDates(ctx context.Context, userID string, start, end *time.Time) ([]models.Transaction, error) {
	r := storage.KeyRange{Lower: []any{userID}, Upper: []any{userID}}
	if start != nil {
		r.Lower = []any{userID, *start}
	}
	if end != nil {
		r.Upper = []any{userID, *end}
	}
	rows, err := l.ops.QueryByRange(ctx, storage.StoreTransactions, "userId_date", r)
	if err != nil {
		return nil, err
	}
	return decodeLive(rows)
}

func decodeLive(rows storage.Rows) ([]models.Transaction, error) {
	all, err := storage.DecodeAll[models.Transaction](rows)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, t := range all {
		if !t.IsDeleted {
			live = append(live, t)
		}
	}
	return live, nil
}

// ownedCategory loads a category and checks that userID owns it.
func ownedCategory(ctx context.Context, ops storage.Ops, userID, id string) (*models.Category, error) {
	var c models.Category
	found, err := ops.Get(ctx, storage.StoreCategories, id, &c)
	if err != nil {
		return nil, err
	}
	if !found || c.UserID != userID {
		return nil, fmt.Errorf("%w: category %s not found or not owned", common.ErrAuthorization, id)
	}
	return &c, nil
}
