package services

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/shopspring/decimal"
)

// monthKey is the bucket of t in CategoryUsage.MonthlyUsage.
func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func applyUsage(c *models.Category, t *models.Transaction, now time.Time) {
	u := &c.Usage
	u.TransactionCount++
	u.TotalAmount += t.Amount
	u.LastUsedDate = ptr(now)

	if u.MonthlyUsage == nil {
		u.MonthlyUsage = map[string]models.PeriodUsage{}
	}
	key := monthKey(t.Date)
	b := u.MonthlyUsage[key]
	b.Count++
	b.Amount += t.Amount
	u.MonthlyUsage[key] = b
}

// retractUsage undoes applyUsage. Counters never go below zero.
func retractUsage(c *models.Category, t *models.Transaction) {
	u := &c.Usage
	u.TransactionCount = max(0, u.TransactionCount-1)
	u.TotalAmount = max(0, u.TotalAmount-t.Amount)

	key := monthKey(t.Date)
	b, ok := u.MonthlyUsage[key]
	if !ok {
		return
	}
	b.Count = max(0, b.Count-1)
	b.Amount = max(0, b.Amount-t.Amount)
	if b.Count == 0 && b.Amount == 0 {
		delete(u.MonthlyUsage, key)
		return
	}
	u.MonthlyUsage[key] = b
}

// adjustUsage moves the usage of before (if any) to after (if any) and
// stores every category it touched. Categories that no longer exist are
// skipped.
func adjustUsage(ctx context.Context, tx storage.Ops, before, after *models.Transaction, now time.Time) error {
	touched := map[string]*models.Category{}
	load := func(id string) (*models.Category, error) {
		if c, ok := touched[id]; ok {
			return c, nil
		}
		var c models.Category
		found, err := tx.Get(ctx, storage.StoreCategories, id, &c)
		if err != nil || !found {
			return nil, err
		}
		touched[id] = &c
		return &c, nil
	}

	if before != nil {
		c, err := load(before.CategoryID)
		if err != nil {
			return err
		}
		if c != nil {
			retractUsage(c, before)
		}
	}
	if after != nil {
		c, err := load(after.CategoryID)
		if err != nil {
			return err
		}
		if c != nil {
			applyUsage(c, after, now)
		}
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		c := touched[id]
		c.UpdatedAt = now
		if err := tx.Put(ctx, storage.StoreCategories, c); err != nil {
			return err
		}
	}
	return nil
}

// recalculateBudgets refreshes the tracking of every active budget of
// userID for categoryID whose period contains date, and returns what each
// of them has left.
func recalculateBudgets(ctx context.Context, tx storage.Ops, userID, categoryID string, date, now time.Time) ([]models.BudgetImpact, error) {
	rows, err := tx.QueryByIndex(ctx, storage.StoreBudgets, "userId_categoryId", userID, categoryID)
	if err != nil {
		return nil, err
	}
	budgets, err := storage.DecodeAll[models.Budget](rows)
	if err != nil {
		return nil, err
	}

	var impacts []models.BudgetImpact
	for i := range budgets {
		b := &budgets[i]
		if b.Status != models.BudgetActive || !b.Period.Contains(date) {
			continue
		}
		if err := refreshTracking(ctx, tx, b, now); err != nil {
			return nil, err
		}
		if err := tx.Put(ctx, storage.StoreBudgets, b); err != nil {
			return nil, err
		}
		impacts = append(impacts, models.BudgetImpact{
			BudgetID:        b.ID,
			BudgetPeriod:    b.Period.Key(),
			RemainingBudget: b.Tracking.RemainingAmount,
		})
	}
	return impacts, nil
}

// refreshTracking recomputes b.Tracking from the live expenses in b's
// category and period. It does not store b.
func refreshTracking(ctx context.Context, ops storage.Ops, b *models.Budget, now time.Time) error {
	txs, err := ledger{ops}.byCategory(ctx, b.UserID, b.CategoryID)
	if err != nil {
		return err
	}

	var spent int64
	for i := range txs {
		t := &txs[i]
		if t.IsExpense() && b.Period.Contains(t.Date) {
			spent += t.Amount
		}
	}
	b.Tracking = computeTracking(b.Amount, spent, now)
	return nil
}

func computeTracking(amount, spent int64, now time.Time) models.BudgetTracking {
	tr := models.BudgetTracking{
		CurrentSpent:     spent,
		RemainingAmount:  amount - spent,
		OnTrack:          true,
		LastCalculatedAt: ptr(now),
	}
	if amount > 0 {
		tr.PercentageUsed = percent(spent, amount)
		tr.OnTrack = spent <= amount
	}
	return tr
}

// percent is part/whole*100 rounded to two decimals.
func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(whole), 2).
		InexactFloat64()
}
