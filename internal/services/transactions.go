package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/dmitrijs2005/fintrack/internal/timex"
)

const (
	maxAmount         = 999_999_999_999
	maxDescriptionLen = 500
)

// ledgerStores are the stores a ledger write may touch.
var ledgerStores = []string{storage.StoreTransactions, storage.StoreCategories, storage.StoreBudgets}

// NewTransaction is the input of CreateTransaction. Amount is in minor
// units and is rounded to the nearest integer.
type NewTransaction struct {
	Amount        float64
	Currency      string
	Type          models.TransactionType
	Date          time.Time
	Description   string
	CategoryID    string
	SubcategoryID *string
	Tags          []string
	PaymentMethod string
	Location      string
	Merchant      string
	Reference     string
	Attachments   []models.Attachment
	Status        models.TransactionStatus // cleared when empty
	IsRecurring   bool
	RecurringID   *string
}

// TransactionUpdate lists the fields UpdateTransaction may change. Nil
// fields are left as they are.
type TransactionUpdate struct {
	Amount        *float64
	Currency      *string
	Type          *models.TransactionType
	Date          *time.Time
	Description   *string
	CategoryID    *string
	SubcategoryID *string
	Tags          *[]string
	PaymentMethod *string
	Location      *string
	Merchant      *string
	Reference     *string
	Attachments   *[]models.Attachment
	Status        *models.TransactionStatus
}

// TransactionService maintains the ledger of the current user together
// with category usage and budget tracking.
type TransactionService struct {
	engine storage.Engine
	auth   Authenticator
	opts   options
}

func NewTransactionService(engine storage.Engine, auth Authenticator, opts ...Option) *TransactionService {
	return &TransactionService{engine: engine, auth: auth, opts: buildOptions(opts)}
}

// CreateTransaction records a new transaction and updates the aggregates
// it feeds.
func (s *TransactionService) CreateTransaction(ctx context.Context, in NewTransaction) (*models.Transaction, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}

	amount, err := roundAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if err := validateType(in.Type); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", common.ErrValidation)
	}
	description, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CategoryID) == "" {
		return nil, fmt.Errorf("%w: category is required", common.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = models.StatusCleared
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrValidation, status)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = userCurrency(user)
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	now := s.opts.stamp()
	t := &models.Transaction{
		ID:            newID(),
		UserID:        user.ID,
		Amount:        amount,
		Currency:      currency,
		Type:          in.Type,
		Date:          timex.Stamp(in.Date),
		Description:   description,
		CategoryID:    in.CategoryID,
		SubcategoryID: in.SubcategoryID,
		Tags:          normalizeTags(in.Tags),
		PaymentMethod: in.PaymentMethod,
		Location:      in.Location,
		Merchant:      in.Merchant,
		Reference:     in.Reference,
		Attachments:   in.Attachments,
		Status:        status,
		IsRecurring:   in.IsRecurring,
		RecurringID:   in.RecurringID,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     user.ID,
		UpdatedBy:     user.ID,
	}
	if t.IsRecurring {
		t.RecurringInstanceID = ptr(newID())
	}

	err = s.engine.ExecuteTransaction(ctx, ledgerStores, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		if _, err := ownedCategory(ctx, tx, user.ID, t.CategoryID); err != nil {
			return err
		}
		if err := tx.Add(ctx, storage.StoreTransactions, t); err != nil {
			return err
		}
		if err := adjustUsage(ctx, tx, nil, t, now); err != nil {
			return err
		}
		if !t.IsExpense() {
			return nil
		}
		impacts, err := recalculateBudgets(ctx, tx, user.ID, t.CategoryID, t.Date, now)
		if err != nil || len(impacts) == 0 {
			return err
		}
		t.BudgetImpact = &impacts[len(impacts)-1]
		return tx.Put(ctx, storage.StoreTransactions, t)
	})
	if err != nil {
		return nil, err
	}

	s.opts.log.Debug(ctx, "transaction created", "transaction_id", t.ID, "user_id", user.ID)
	return t, nil
}

// UpdateTransaction changes a live transaction owned by the caller.
func (s *TransactionService) UpdateTransaction(ctx context.Context, id string, upd TransactionUpdate) (*models.Transaction, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	if err := validateUpdate(upd); err != nil {
		return nil, err
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	now := s.opts.stamp()
	var out *models.Transaction
	err = s.engine.ExecuteTransaction(ctx, ledgerStores, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		old, err := ledger{tx}.get(ctx, id)
		if err != nil {
			return err
		}
		if old.UserID != user.ID {
			return fmt.Errorf("%w: transaction %s", common.ErrAuthorization, id)
		}

		next := *old
		if err := applyUpdate(&next, upd); err != nil {
			return err
		}
		if next.CategoryID != old.CategoryID {
			if _, err := ownedCategory(ctx, tx, user.ID, next.CategoryID); err != nil {
				return err
			}
		}
		next.UpdatedAt = now
		next.UpdatedBy = user.ID
		next.BudgetImpact = nil

		if err := tx.Put(ctx, storage.StoreTransactions, &next); err != nil {
			return err
		}
		if err := adjustUsage(ctx, tx, old, &next, now); err != nil {
			return err
		}

		if old.IsExpense() {
			if _, err := recalculateBudgets(ctx, tx, user.ID, old.CategoryID, old.Date, now); err != nil {
				return err
			}
		}
		if next.IsExpense() {
			impacts, err := recalculateBudgets(ctx, tx, user.ID, next.CategoryID, next.Date, now)
			if err != nil {
				return err
			}
			if len(impacts) > 0 {
				next.BudgetImpact = &impacts[len(impacts)-1]
				if err := tx.Put(ctx, storage.StoreTransactions, &next); err != nil {
					return err
				}
			}
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.log.Debug(ctx, "transaction updated", "transaction_id", id, "user_id", user.ID)
	return out, nil
}

// DeleteTransaction soft-deletes a live transaction owned by the caller.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	user, err := requireUser(s.auth)
	if err != nil {
		return err
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	now := s.opts.stamp()
	err = s.engine.ExecuteTransaction(ctx, ledgerStores, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		old, err := ledger{tx}.get(ctx, id)
		if err != nil {
			return err
		}
		if old.UserID != user.ID {
			return fmt.Errorf("%w: transaction %s", common.ErrAuthorization, id)
		}

		deleted := *old
		deleted.IsDeleted = true
		deleted.DeletedAt = ptr(now)
		deleted.DeletedBy = user.ID
		deleted.UpdatedAt = now
		deleted.UpdatedBy = user.ID
		if err := tx.Put(ctx, storage.StoreTransactions, &deleted); err != nil {
			return err
		}
		if err := adjustUsage(ctx, tx, old, nil, now); err != nil {
			return err
		}
		if old.IsExpense() {
			_, err = recalculateBudgets(ctx, tx, user.ID, old.CategoryID, old.Date, now)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.opts.log.Debug(ctx, "transaction deleted", "transaction_id", id, "user_id", user.ID)
	return nil
}

// GetTransaction returns a live transaction of the caller.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	t, err := ledger{s.engine}.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != user.ID {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return t, nil
}

// GetTransactionForAudit is GetTransaction including soft-deleted rows.
func (s *TransactionService) GetTransactionForAudit(ctx context.Context, id string) (*models.Transaction, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	t, err := ledger{s.engine}.getAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != user.ID {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return t, nil
}

func roundAmount(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: amount is not a number", common.ErrValidation)
	}
	r := math.Round(v)
	if r < 1 {
		return 0, fmt.Errorf("%w: amount must be positive", common.ErrValidation)
	}
	if r > maxAmount {
		return 0, fmt.Errorf("%w: amount exceeds %d", common.ErrValidation, int64(maxAmount))
	}
	return int64(r), nil
}

func validateType(t models.TransactionType) error {
	if t == "" {
		return fmt.Errorf("%w: type is required", common.ErrValidation)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", common.ErrValidation, t)
	}
	return nil
}

func validateDescription(d string) (string, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return "", fmt.Errorf("%w: description is required", common.ErrValidation)
	}
	if utf8.RuneCountInString(d) > maxDescriptionLen {
		return "", fmt.Errorf("%w: description is longer than %d characters", common.ErrValidation, maxDescriptionLen)
	}
	return d, nil
}

func validateUpdate(upd TransactionUpdate) error {
	if upd.Amount != nil {
		if _, err := roundAmount(*upd.Amount); err != nil {
			return err
		}
	}
	if upd.Type != nil {
		if err := validateType(*upd.Type); err != nil {
			return err
		}
	}
	if upd.Date != nil && upd.Date.IsZero() {
		return fmt.Errorf("%w: date is required", common.ErrValidation)
	}
	if upd.Description != nil {
		if _, err := validateDescription(*upd.Description); err != nil {
			return err
		}
	}
	if upd.CategoryID != nil && strings.TrimSpace(*upd.CategoryID) == "" {
		return fmt.Errorf("%w: category is required", common.ErrValidation)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", common.ErrValidation, *upd.Status)
	}
	return nil
}

// applyUpdate copies the set fields of upd onto t. upd must have passed
// validateUpdate.
func applyUpdate(t *models.Transaction, upd TransactionUpdate) error {
	if upd.Amount != nil {
		a, err := roundAmount(*upd.Amount)
		if err != nil {
			return err
		}
		t.Amount = a
	}
	if upd.Currency != nil {
		if c := strings.ToUpper(strings.TrimSpace(*upd.Currency)); c != "" {
			t.Currency = c
		}
	}
	if upd.Type != nil {
		t.Type = *upd.Type
	}
	if upd.Date != nil {
		t.Date = timex.Stamp(*upd.Date)
	}
	if upd.Description != nil {
		t.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.CategoryID != nil {
		t.CategoryID = *upd.CategoryID
	}
	if upd.SubcategoryID != nil {
		t.SubcategoryID = upd.SubcategoryID
		if *upd.SubcategoryID == "" {
			t.SubcategoryID = nil
		}
	}
	if upd.Tags != nil {
		t.Tags = normalizeTags(*upd.Tags)
	}
	if upd.PaymentMethod != nil {
		t.PaymentMethod = *upd.PaymentMethod
	}
	if upd.Location != nil {
		t.Location = *upd.Location
	}
	if upd.Merchant != nil {
		t.Merchant = *upd.Merchant
	}
	if upd.Reference != nil {
		t.Reference = *upd.Reference
	}
	if upd.Attachments != nil {
		t.Attachments = slices.Clone(*upd.Attachments)
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	return nil
}

// normalizeTags trims tags and drops empty ones and duplicates.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}
