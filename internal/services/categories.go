package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/storage"
)

type NewCategory struct {
	Name        string
	Type        models.CategoryType
	Description string
	Color       string
	Icon        string
	ParentID    *string
	Budget      *models.BudgetSettings // derived from Type when nil
}

// CategoryFilter narrows ListCategories. A nil ParentID matches any parent;
// a pointer to "" matches root categories only.
type CategoryFilter struct {
	Type       models.CategoryType
	ParentID   *string
	ActiveOnly bool
}

type CategoryService struct {
	engine storage.Engine
	auth   Authenticator
	opts   options
}

func NewCategoryService(engine storage.Engine, auth Authenticator, opts ...Option) *CategoryService {
	return &CategoryService{engine: engine, auth: auth, opts: buildOptions(opts)}
}

// CreateCategory adds a category for the caller, below ParentID when set.
func (s *CategoryService) CreateCategory(ctx context.Context, in NewCategory) (*models.Category, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown category type %q", common.ErrValidation, in.Type)
	}

	settings := models.BudgetSettings{
		AllowBudgeting: in.Type != models.CategoryIncome,
		BudgetType:     models.BudgetFixed,
		AlertThreshold: defaultAlertThreshold,
	}
	if in.Budget != nil {
		settings = *in.Budget
		if !settings.BudgetType.Valid() {
			return nil, fmt.Errorf("%w: unknown budget type %q", common.ErrValidation, settings.BudgetType)
		}
	}

	s.opts.lock.Lock()
	defer s.opts.lock.Unlock()

	now := s.opts.stamp()
	c := &models.Category{
		ID:          newID(),
		UserID:      user.ID,
		Name:        name,
		Type:        in.Type,
		Description: strings.TrimSpace(in.Description),
		Color:       in.Color,
		Icon:        in.Icon,
		Path:        categoryPath(name),
		Budget:      settings,
		Usage:       models.CategoryUsage{MonthlyUsage: map[string]models.PeriodUsage{}},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.engine.ExecuteTransaction(ctx, []string{storage.StoreCategories}, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		var parent any
		if in.ParentID != nil && *in.ParentID != "" {
			p, err := ownedCategory(ctx, tx, user.ID, *in.ParentID)
			if err != nil {
				return err
			}
			c.ParentID = ptr(p.ID)
			c.Path = p.Path + categoryPath(name)
			c.Level = p.Level + 1
			parent = p.ID
		}

		siblings, err := tx.Count(ctx, storage.StoreCategories, &storage.IndexQuery{
			Index:  "userId_parentId",
			Values: []any{user.ID, parent},
		})
		if err != nil {
			return err
		}
		c.SortOrder = siblings
		return tx.Add(ctx, storage.StoreCategories, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCategory returns one of the caller's categories.
func (s *CategoryService) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	var c models.Category
	found, err := s.engine.Get(ctx, storage.StoreCategories, id, &c)
	if err != nil {
		return nil, err
	}
	if !found || c.UserID != user.ID {
		return nil, fmt.Errorf("%w: category %s", common.ErrNotFound, id)
	}
	return &c, nil
}

// ListCategories returns the caller's categories ordered by type, level,
// sort order and name.
func (s *CategoryService) ListCategories(ctx context.Context, f CategoryFilter) ([]models.Category, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}

	var rows storage.Rows
	if f.Type != "" {
		rows, err = s.engine.QueryByIndex(ctx, storage.StoreCategories, "userId_type", user.ID, string(f.Type))
	} else {
		rows, err = s.engine.QueryByIndex(ctx, storage.StoreCategories, "userId", user.ID)
	}
	if err != nil {
		return nil, err
	}
	all, err := storage.DecodeAll[models.Category](rows)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, c := range all {
		if f.ActiveOnly && !c.IsActive {
			continue
		}
		if f.ParentID != nil {
			parent := ""
			if c.ParentID != nil {
				parent = *c.ParentID
			}
			if parent != *f.ParentID {
				continue
			}
		}
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b models.Category) int {
		return cmp.Or(
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Level, b.Level),
			cmp.Compare(a.SortOrder, b.SortOrder),
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}
