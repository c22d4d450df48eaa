package storage

import (
	"fmt"

	"github.com/dmitrijs2005/fintrack/internal/common"
)

// Store names.
const (
	StoreUsers                 = "users"
	StoreTransactions          = "transactions"
	StoreCategories            = "categories"
	StoreBudgets               = "budgets"
	StoreGoals                 = "goals"
	StoreRecurringTransactions = "recurringTransactions"
	StoreHealthScores          = "financialHealthScores"
)

// Kind is the comparison type of an indexed field.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
)

// Field is one key path of an index. Paths are dotted JSON member names,
// e.g. "period.startDate".
type Field struct {
	Path string
	Kind Kind
}

type Index struct {
	Name   string
	Fields []Field
	Unique bool
}

type Store struct {
	Name    string
	Table   string
	KeyPath string
	Indexes []Index
}

// Index returns the named index of s.
func (s *Store) Index(name string) (*Index, error) {
	for i := range s.Indexes {
		if s.Indexes[i].Name == name {
			return &s.Indexes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", common.ErrUnknownIndex, s.Name, name)
}

type Schema struct {
	Version int64
	Stores  []Store
}

// Store returns the named store of sc.
func (sc *Schema) Store(name string) (*Store, error) {
	for i := range sc.Stores {
		if sc.Stores[i].Name == name {
			return &sc.Stores[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", common.ErrUnknownStore, name)
}

// StoreNames lists every store in declaration order.
func (sc *Schema) StoreNames() []string {
	names := make([]string, len(sc.Stores))
	for i, s := range sc.Stores {
		names[i] = s.Name
	}
	return names
}

func text(path string) Field   { return Field{Path: path, Kind: KindText} }
func number(path string) Field { return Field{Path: path, Kind: KindNumber} }
func boolean(path string) Field {
	return Field{Path: path, Kind: KindBool}
}

func idx(name string, fields ...Field) Index {
	return Index{Name: name, Fields: fields}
}

func unique(name string, fields ...Field) Index {
	return Index{Name: name, Fields: fields, Unique: true}
}

// Default is the finance tracker schema. The SQL migrations under
// sqlstore/migrations create exactly these stores and indexes.
var Default = Schema{
	Version: 1,
	Stores: []Store{
		{
			Name: StoreUsers, Table: "users", KeyPath: "id",
			Indexes: []Index{
				unique("username", text("username")),
				unique("email", text("email")),
				idx("createdAt", text("createdAt")),
				idx("lastLoginAt", text("lastLoginAt")),
			},
		},
		{
			Name: StoreTransactions, Table: "transactions", KeyPath: "id",
			Indexes: []Index{
				idx("userId", text("userId")),
				idx("date", text("date")),
				idx("categoryId", text("categoryId")),
				idx("type", text("type")),
				idx("amount", number("amount")),
				idx("userId_date", text("userId"), text("date")),
				idx("userId_categoryId", text("userId"), text("categoryId")),
				idx("userId_type_date", text("userId"), text("type"), text("date")),
				idx("isRecurring", boolean("isRecurring")),
				idx("status", text("status")),
			},
		},
		{
			Name: StoreCategories, Table: "categories", KeyPath: "id",
			Indexes: []Index{
				idx("userId", text("userId")),
				idx("parentId", text("parentId")),
				idx("path", text("path")),
				idx("level", number("level")),
				idx("userId_parentId", text("userId"), text("parentId")),
				idx("userId_type", text("userId"), text("type")),
				idx("isSystem", boolean("isSystem")),
				idx("isActive", boolean("isActive")),
			},
		},
		{
			Name: StoreBudgets, Table: "budgets", KeyPath: "id",
			Indexes: []Index{
				idx("userId", text("userId")),
				idx("categoryId", text("categoryId")),
				idx("userId_categoryId", text("userId"), text("categoryId")),
				idx("period_startDate", text("period.startDate")),
				idx("period_endDate", text("period.endDate")),
				idx("status", text("status")),
				idx("isTemplate", boolean("isTemplate")),
			},
		},
		{
			Name: StoreGoals, Table: "goals", KeyPath: "id",
			Indexes: []Index{
				idx("userId", text("userId")),
				idx("targetDate", text("targetDate")),
				idx("priority", text("priority")),
				idx("category", text("category")),
				idx("status", text("status")),
				idx("userId_status", text("userId"), text("status")),
				idx("userId_category", text("userId"), text("category")),
			},
		},
		{
			Name: StoreRecurringTransactions, Table: "recurring_transactions", KeyPath: "id",
			Indexes: []Index{
				idx("userId", text("userId")),
				idx("schedule_nextDueDate", text("schedule.nextDueDate")),
				idx("status", text("status")),
				idx("automation_autoGenerate", boolean("automation.autoGenerate")),
				idx("userId_status", text("userId"), text("status")),
			},
		},
		{
			Name: StoreHealthScores, Table: "financial_health_scores", KeyPath: "id",
			Indexes: []Index{
				idx("userId", text("userId")),
				idx("calculation_calculatedAt", text("calculation.calculatedAt")),
				idx("overallScore", number("overallScore")),
				idx("userId_calculatedAt", text("userId"), text("calculation.calculatedAt")),
			},
		},
	},
}

// OwnedStores are the stores whose records carry a userId and are removed
// when their owner deletes the account.
var OwnedStores = []string{
	StoreTransactions,
	StoreCategories,
	StoreBudgets,
	StoreGoals,
	StoreRecurringTransactions,
	StoreHealthScores,
}
