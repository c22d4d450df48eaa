package models

import "time"

type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
	CategoryBoth    CategoryType = "both"
)

func (t CategoryType) Valid() bool {
	switch t {
	case CategoryIncome, CategoryExpense, CategoryBoth:
		return true
	}
	return false
}

// PeriodUsage is one "YYYY-MM" bucket of a category's usage.
type PeriodUsage struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// CategoryUsage is the running aggregate over the category's live
// transactions.
type CategoryUsage struct {
	TransactionCount int                    `json:"transactionCount"`
	TotalAmount      int64                  `json:"totalAmount"`
	LastUsedDate     *time.Time             `json:"lastUsedDate"`
	MonthlyUsage     map[string]PeriodUsage `json:"monthlyUsage"`
}

type BudgetSettings struct {
	AllowBudgeting      bool       `json:"allowBudgeting"`
	DefaultBudgetAmount int64      `json:"defaultBudgetAmount"`
	BudgetType          BudgetType `json:"budgetType"`
	AlertThreshold      int        `json:"alertThreshold"` // percent
}

type Category struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Name        string         `json:"name"`
	Type        CategoryType   `json:"type"`
	Description string         `json:"description,omitempty"`
	Color       string         `json:"color,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	ParentID    *string        `json:"parentId"`
	Path        string         `json:"path"`
	Level       int            `json:"level"`
	SortOrder   int            `json:"sortOrder"`
	Budget      BudgetSettings `json:"budgetSettings"`
	Usage       CategoryUsage  `json:"usage"`
	IsSystem    bool           `json:"isSystem"`
	IsActive    bool           `json:"isActive"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
