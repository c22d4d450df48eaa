package services

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/models"
	"gopkg.in/yaml.v2"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const defaultAlertThreshold = 80

type seedCategory struct {
	Name  string `yaml:"name"`
	Icon  string `yaml:"icon"`
	Color string `yaml:"color"`
}

type seedFile struct {
	Income  []seedCategory `yaml:"income"`
	Expense []seedCategory `yaml:"expense"`
}

func loadSeed(raw []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse default categories: %w", err)
	}
	return &f, nil
}

// categoryPath turns a root category name into its path, e.g.
// "Other Income" becomes "/other-income".
func categoryPath(name string) string {
	return "/" + strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// defaultCategories builds the system categories of a new account.
func defaultCategories(userID string, now time.Time) ([]models.Category, error) {
	seed, err := loadSeed(defaultsYAML)
	if err != nil {
		return nil, err
	}

	out := make([]models.Category, 0, len(seed.Income)+len(seed.Expense))
	add := func(list []seedCategory, typ models.CategoryType, budgeting bool) {
		for i, c := range list {
			out = append(out, models.Category{
				ID:          newID(),
				UserID:      userID,
				Name:        c.Name,
				Type:        typ,
				Description: fmt.Sprintf("Default %s category", strings.ToLower(c.Name)),
				Color:       c.Color,
				Icon:        c.Icon,
				Path:        categoryPath(c.Name),
				SortOrder:   i,
				Budget: models.BudgetSettings{
					AllowBudgeting: budgeting,
					BudgetType:     models.BudgetFixed,
					AlertThreshold: defaultAlertThreshold,
				},
				Usage:     models.CategoryUsage{MonthlyUsage: map[string]models.PeriodUsage{}},
				IsSystem:  true,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	add(seed.Income, models.CategoryIncome, false)
	add(seed.Expense, models.CategoryExpense, true)

	return out, nil
}
