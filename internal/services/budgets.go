package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/dmitrijs2005/fintrack/internal/timex"
)

type NewBudget struct {
	Name           string // "<category> budget" when empty
	CategoryID     string
	Amount         float64
	Currency       string
	StartDate      time.Time
	EndDate        time.Time
	Cadence        string
	BudgetType     models.BudgetType // the category's budget type when empty
	AlertThreshold int               // the category's threshold when zero
}

type BudgetFilter struct {
	CategoryID string
	Status     models.BudgetStatus
	ActiveOn   *time.Time // period contains this instant
}

// BudgetService manages spending limits. It must share its WriteLock with
// the TransactionService of the same engine.
type BudgetService struct {
	engine storage.Engine
	auth   Authenticator
	opts   options
}

func NewBudgetService(engine storage.Engine, auth Authenticator, opts ...Option) *BudgetService {
	return &BudgetService{engine: engine, auth: auth, opts: buildOptions(opts)}
}

// CreateBudget adds an active budget with tracking computed from the
// transactions already in its period.
func (s *BudgetService) CreateBudget(ctx context.Context, in NewBudget) (*models.Budget, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	amount, err := roundAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: budget period is required", common.ErrValidation)
	}
	period := models.BudgetPeriod{
		StartDate: timex.Stamp(in.StartDate),
		EndDate:   timex.Stamp(in.EndDate),
		Cadence:   in.Cadence,
	}
	if period.EndDate.Before(period.StartDate) {
		return nil, fmt.Errorf("%w: budget period ends before it starts", common.ErrValidation)
	}
	if in.BudgetType != "" && !in.BudgetType.Valid() {
		return nil, fmt.Errorf("%w: unknown budget type %q", common.ErrValidation, in.BudgetType)
	}
	if in.AlertThreshold < 0 || in.AlertThreshold > 100 {
		return nil, fmt.Errorf("%w: alert threshold must be between 0 and 100", common.ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = userCurrency(user)
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	now := s.opts.stamp()
	b := &models.Budget{
		ID:             newID(),
		UserID:         user.ID,
		CategoryID:     in.CategoryID,
		Name:           strings.TrimSpace(in.Name),
		Amount:         amount,
		Currency:       currency,
		Period:         period,
		BudgetType:     in.BudgetType,
		AlertThreshold: in.AlertThreshold,
		Status:         models.BudgetActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.engine.ExecuteTransaction(ctx, ledgerStores, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		c, err := ownedCategory(ctx, tx, user.ID, in.CategoryID)
		if err != nil {
			return err
		}
		if !c.Budget.AllowBudgeting {
			return fmt.Errorf("%w: category %q does not allow budgeting", common.ErrValidation, c.Name)
		}
		if b.Name == "" {
			b.Name = c.Name + " budget"
		}
		if b.BudgetType == "" {
			b.BudgetType = cmp.Or(c.Budget.BudgetType, models.BudgetFixed)
		}
		if b.AlertThreshold == 0 {
			b.AlertThreshold = cmp.Or(c.Budget.AlertThreshold, defaultAlertThreshold)
		}
		if err := refreshTracking(ctx, tx, b, now); err != nil {
			return err
		}
		return tx.Add(ctx, storage.StoreBudgets, b)
	})
	if err != nil {
		return nil, err
	}

	s.opts.log.Debug(ctx, "budget created", "budget_id", b.ID, "user_id", user.ID)
	return b, nil
}

// GetBudget returns one of the caller's budgets.
func (s *BudgetService) GetBudget(ctx context.Context, id string) (*models.Budget, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	var b models.Budget
	found, err := s.engine.Get(ctx, storage.StoreBudgets, id, &b)
	if err != nil {
		return nil, err
	}
	if !found || b.UserID != user.ID {
		return nil, fmt.Errorf("%w: budget %s", common.ErrNotFound, id)
	}
	return &b, nil
}

// ListBudgets returns the caller's budgets ordered by period start.
func (s *BudgetService) ListBudgets(ctx context.Context, f BudgetFilter) ([]models.Budget, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}

	var rows storage.Rows
	if f.CategoryID != "" {
		rows, err = s.engine.QueryByIndex(ctx, storage.StoreBudgets, "userId_categoryId", user.ID, f.CategoryID)
	} else {
		rows, err = s.engine.QueryByIndex(ctx, storage.StoreBudgets, "userId", user.ID)
	}
	if err != nil {
		return nil, err
	}
	all, err := storage.DecodeAll[models.Budget](rows)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, b := range all {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.ActiveOn != nil && !b.Period.Contains(*f.ActiveOn) {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b models.Budget) int {
		return cmp.Or(
			a.Period.StartDate.Compare(b.Period.StartDate),
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

// SetBudgetStatus changes the status of a budget. Tracking is recomputed
// when the budget becomes active, since inactive budgets are not kept up
// to date.
func (s *BudgetService) SetBudgetStatus(ctx context.Context, id string, status models.BudgetStatus) (*models.Budget, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown budget status %q", common.ErrValidation, status)
	}
	return s.modify(ctx, id, func(ctx context.Context, tx storage.Ops, b *models.Budget, now time.Time) error {
		b.Status = status
		if status == models.BudgetActive {
			return refreshTracking(ctx, tx, b, now)
		}
		return nil
	})
}

// RecalculateBudget recomputes the tracking of a budget from the ledger.
func (s *BudgetService) RecalculateBudget(ctx context.Context, id string) (*models.Budget, error) {
	return s.modify(ctx, id, func(ctx context.Context, tx storage.Ops, b *models.Budget, now time.Time) error {
		return refreshTracking(ctx, tx, b, now)
	})
}

// DeleteBudget removes a budget permanently.
func (s *BudgetService) DeleteBudget(ctx context.Context, id string) error {
	user, err := requireUser(s.auth)
	if err != nil {
		return err
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	return s.engine.ExecuteTransaction(ctx, []string{storage.StoreBudgets}, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		if _, err := ownedBudget(ctx, tx, user.ID, id); err != nil {
			return err
		}
		return tx.Delete(ctx, storage.StoreBudgets, id)
	})
}

func (s *BudgetService) modify(ctx context.Context, id string, fn func(context.Context, storage.Ops, *models.Budget, time.Time) error) (*models.Budget, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	now := s.opts.stamp()
	var out *models.Budget
	err = s.engine.ExecuteTransaction(ctx, ledgerStores, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		b, err := ownedBudget(ctx, tx, user.ID, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, b, now); err != nil {
			return err
		}
		b.UpdatedAt = now
		out = b
		return tx.Put(ctx, storage.StoreBudgets, b)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ownedBudget(ctx context.Context, ops storage.Ops, userID, id string) (*models.Budget, error) {
	var b models.Budget
	found, err := ops.Get(ctx, storage.StoreBudgets, id, &b)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: budget %s", common.ErrNotFound, id)
	}
	if b.UserID != userID {
		return nil, fmt.Errorf("%w: budget %s", common.ErrAuthorization, id)
	}
	return &b, nil
}
