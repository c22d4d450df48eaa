package models

import "time"

type BudgetType string

const (
	BudgetFixed      BudgetType = "fixed"
	BudgetPercentage BudgetType = "percentage"
	BudgetVariable   BudgetType = "variable"
)

func (t BudgetType) Valid() bool {
	switch t {
	case BudgetFixed, BudgetPercentage, BudgetVariable:
		return true
	}
	return false
}

type BudgetStatus string

const (
	BudgetActive    BudgetStatus = "active"
	BudgetPaused    BudgetStatus = "paused"
	BudgetCompleted BudgetStatus = "completed"
	BudgetCancelled BudgetStatus = "cancelled"
)

func (s BudgetStatus) Valid() bool {
	switch s {
	case BudgetActive, BudgetPaused, BudgetCompleted, BudgetCancelled:
		return true
	}
	return false
}

// BudgetPeriod is an inclusive date range.
type BudgetPeriod struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Cadence   string    `json:"cadence,omitempty"`
}

// Contains reports whether t falls within the period, bounds included.
func (p BudgetPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// Key renders the period as "start_end" in RFC 3339.
func (p BudgetPeriod) Key() string {
	return p.StartDate.UTC().Format(time.RFC3339) + "_" + p.EndDate.UTC().Format(time.RFC3339)
}

type BudgetTracking struct {
	CurrentSpent      int64      `json:"currentSpent"`
	RemainingAmount   int64      `json:"remainingAmount"`
	PercentageUsed    float64    `json:"percentageUsed"`
	OnTrack           bool       `json:"onTrack"`
	ProjectedSpending *int64     `json:"projectedSpending"`
	LastCalculatedAt  *time.Time `json:"lastCalculatedAt"`
}

type Budget struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	CategoryID     string         `json:"categoryId"`
	Name           string         `json:"name"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Period         BudgetPeriod   `json:"period"`
	BudgetType     BudgetType     `json:"budgetType"`
	AlertThreshold int            `json:"alertThreshold"`
	Tracking       BudgetTracking `json:"tracking"`
	Status         BudgetStatus   `json:"status"`
	IsTemplate     bool           `json:"isTemplate"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}
