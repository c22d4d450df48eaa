package models

import "time"

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusCleared    TransactionStatus = "cleared"
	StatusReconciled TransactionStatus = "reconciled"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCleared, StatusReconciled:
		return true
	}
	return false
}

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// BudgetImpact records which budget a write affected and what remained of
// it afterwards.
type BudgetImpact struct {
	BudgetID        string `json:"budgetId"`
	BudgetPeriod    string `json:"budgetPeriod"`
	RemainingBudget int64  `json:"remainingBudget"`
}

// Transaction is a ledger entry. Amount is in minor currency units.
type Transaction struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Type          TransactionType   `json:"type"`
	Date          time.Time         `json:"date"`
	Description   string            `json:"description"`
	CategoryID    string            `json:"categoryId"`
	SubcategoryID *string           `json:"subcategoryId,omitempty"`
	Tags          []string          `json:"tags"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	Location      string            `json:"location,omitempty"`
	Merchant      string            `json:"merchant,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	Attachments   []Attachment      `json:"attachments,omitempty"`
	Status        TransactionStatus `json:"status"`

	IsRecurring         bool    `json:"isRecurring"`
	RecurringID         *string `json:"recurringId,omitempty"`
	RecurringInstanceID *string `json:"recurringInstanceId,omitempty"`

	BudgetImpact *BudgetImpact `json:"budgetImpact"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy string    `json:"updatedBy"`
}

// IsExpense is shorthand for Type == TransactionExpense.
func (t *Transaction) IsExpense() bool {
	return t.Type == TransactionExpense
}
