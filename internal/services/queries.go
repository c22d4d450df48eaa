package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/timex"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

const defaultRecentLimit = 10

type SortField string

const (
	SortByDate        SortField = "date"
	SortByAmount      SortField = "amount"
	SortByDescription SortField = "description"
	SortByCreatedAt   SortField = "createdAt"
)

type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// TransactionFilter narrows GetTransactions. Zero values do not filter.
// Dates are inclusive. A transaction matches Tags when it carries any of
// them, and Search when its description, merchant or reference contains
// the text, ignoring case.
type TransactionFilter struct {
	Type       models.TransactionType
	CategoryID string
	StartDate  *time.Time
	EndDate    *time.Time
	Status     models.TransactionStatus
	Tags       []string
	Search     string

	SortBy    SortField // date when empty
	SortOrder SortOrder // desc when empty
	Offset    int
	Limit     int // 0 returns everything after Offset
}

type TransactionPage struct {
	Transactions []models.Transaction
	Total        int
	Offset       int
	Limit        int
	HasMore      bool
}

// GetTransactions lists the caller's live transactions.
func (s *TransactionService) GetTransactions(ctx context.Context, f TransactionFilter) (*TransactionPage, error) {
	user, err := requireUser(s.auth)
	if err != nil {
		return nil, err
	}
	if f.Offset < 0 || f.Limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", common.ErrValidation)
	}
	less, err := sorter(f.SortBy, f.SortOrder)
	if err != nil {
		return nil, err
	}

	txs, err := s.candidates(ctx, user.ID, &f)
	if err != nil {
		return nil, err
	}

	match := matcher(f)
	filtered := txs[:0]
	for _, t := range txs {
		if match(&t) {
			filtered = append(filtered, t)
		}
	}
	slices.SortStableFunc(filtered, less)

	total := len(filtered)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	limit := f.Limit
	if limit == 0 {
		limit = total
	}

	return &TransactionPage{
		Transactions: slices.Clone(filtered[start:end]),
		Total:        total,
		Offset:       f.Offset,
		Limit:        limit,
		HasMore:      end < total,
	}, nil
}

// candidates fetches through the narrowest index the filter allows. Dates
// are normalized in f so the in-memory match agrees with the index.
func (s *TransactionService) candidates(ctx context.Context, userID string, f *TransactionFilter) ([]models.Transaction, error) {
	if f.StartDate != nil {
		f.StartDate = ptr(timex.Stamp(*f.StartDate))
	}
	if f.EndDate != nil {
		f.EndDate = ptr(timex.Stamp(*f.EndDate))
	}

	l := ledger{s.engine}
	switch {
	case f.CategoryID != "":
		return l.byCategory(ctx, userID, f.CategoryID)
	case f.StartDate != nil || f.EndDate != nil:
		return l.byDates(ctx, userID, f.StartDate, f.EndDate)
	default:
		return l.byUser(ctx, userID)
	}
}

func matcher(f TransactionFilter) func(*models.Transaction) bool {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(f.Search))

	return func(t *models.Transaction) bool {
		switch {
		case f.Type != "" && t.Type != f.Type:
			return false
		case f.CategoryID != "" && t.CategoryID != f.CategoryID:
			return false
		case f.StartDate != nil && t.Date.Before(*f.StartDate):
			return false
		case f.EndDate != nil && t.Date.After(*f.EndDate):
			return false
		case f.Status != "" && t.Status != f.Status:
			return false
		}
		if len(f.Tags) > 0 && !slices.ContainsFunc(t.Tags, func(tag string) bool { return slices.Contains(f.Tags, tag) }) {
			return false
		}
		if needle != "" {
			hay := fold.String(t.Description + "\x00" + t.Merchant + "\x00" + t.Reference)
			if !strings.Contains(hay, needle) {
				return false
			}
		}
		return true
	}
}

func sorter(by SortField, order SortOrder) (func(a, b models.Transaction) int, error) {
	var key func(a, b models.Transaction) int
	switch by {
	case "", SortByDate:
		key = func(a, b models.Transaction) int { return a.Date.Compare(b.Date) }
	case SortByAmount:
		key = func(a, b models.Transaction) int { return cmp.Compare(a.Amount, b.Amount) }
	case SortByDescription:
		key = func(a, b models.Transaction) int { return strings.Compare(a.Description, b.Description) }
	case SortByCreatedAt:
		key = func(a, b models.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return nil, fmt.Errorf("%w: unknown sort field %q", common.ErrValidation, by)
	}

	sign := -1
	switch order {
	case "", SortDesc:
	case SortAsc:
		sign = 1
	default:
		return nil, fmt.Errorf("%w: unknown sort order %q", common.ErrValidation, order)
	}

	return func(a, b models.Transaction) int {
		if c := key(a, b); c != 0 {
			return sign * c
		}
		return sign * strings.Compare(a.ID, b.ID)
	}, nil
}

// GetRecentTransactions returns the newest transactions by date, ten when
// limit is not positive.
func (s *TransactionService) GetRecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	page, err := s.GetTransactions(ctx, TransactionFilter{SortBy: SortByDate, SortOrder: SortDesc, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Transactions, nil
}

// SearchTransactions is GetTransactions with f.Search set to query.
func (s *TransactionService) SearchTransactions(ctx context.Context, query string, f TransactionFilter) (*TransactionPage, error) {
	f.Search = query
	return s.GetTransactions(ctx, f)
}

type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
	GroupByYear  GroupBy = "year"
)

// periodKey buckets t: day and week give "YYYY-MM-DD" (weeks start on
// Sunday), month "YYYY-MM", year "YYYY". All in UTC.
func periodKey(t time.Time, g GroupBy) (string, error) {
	t = t.UTC()
	switch g {
	case GroupByDay:
		return t.Format(time.DateOnly), nil
	case GroupByWeek:
		return t.AddDate(0, 0, -int(t.Weekday())).Format(time.DateOnly), nil
	case "", GroupByMonth:
		return t.Format("2006-01"), nil
	case GroupByYear:
		return t.Format("2006"), nil
	}
	return "", fmt.Errorf("%w: unknown grouping %q", common.ErrValidation, g)
}

type SummaryOptions struct {
	Filter  TransactionFilter // sorting and paging are ignored
	GroupBy GroupBy           // month when empty
}

type Breakdown struct {
	Income   int64
	Expenses int64
	Count    int
}

func (b *Breakdown) add(t *models.Transaction) {
	if t.IsExpense() {
		b.Expenses += t.Amount
	} else {
		b.Income += t.Amount
	}
	b.Count++
}

type Summary struct {
	TotalIncome        int64
	TotalExpenses      int64
	NetCashFlow        int64
	TransactionCount   int
	AverageTransaction decimal.Decimal // over all transactions, 2 dp
	ByCategory         map[string]Breakdown
	ByPeriod           map[string]Breakdown
}

// GetTransactionSummary totals the transactions matching opts.Filter.
func (s *TransactionService) GetTransactionSummary(ctx context.Context, opts SummaryOptions) (*Summary, error) {
	f := opts.Filter
	f.Offset, f.Limit, f.SortBy, f.SortOrder = 0, 0, "", ""
	page, err := s.GetTransactions(ctx, f)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TransactionCount:   page.Total,
		AverageTransaction: decimal.Zero,
		ByCategory:         map[string]Breakdown{},
		ByPeriod:           map[string]Breakdown{},
	}
	for i := range page.Transactions {
		t := &page.Transactions[i]
		if t.IsExpense() {
			sum.TotalExpenses += t.Amount
		} else {
			sum.TotalIncome += t.Amount
		}

		c := sum.ByCategory[t.CategoryID]
		c.add(t)
		sum.ByCategory[t.CategoryID] = c

		key, err := periodKey(t.Date, opts.GroupBy)
		if err != nil {
			return nil, err
		}
		p := sum.ByPeriod[key]
		p.add(t)
		sum.ByPeriod[key] = p
	}
	sum.NetCashFlow = sum.TotalIncome - sum.TotalExpenses
	if sum.TransactionCount > 0 {
		sum.AverageTransaction = decimal.NewFromInt(sum.TotalIncome + sum.TotalExpenses).
			DivRound(decimal.NewFromInt(int64(sum.TransactionCount)), 2)
	}
	return sum, nil
}

type ExportRow struct {
	models.Transaction
	FormattedAmount string
}

type Export struct {
	ExportedAt time.Time
	Count      int
	Rows       []ExportRow
}

// ExportTransactions returns every transaction matching f with a display
// amount in the row's currency.
func (s *TransactionService) ExportTransactions(ctx context.Context, f TransactionFilter) (*Export, error) {
	f.Offset, f.Limit = 0, 0
	page, err := s.GetTransactions(ctx, f)
	if err != nil {
		return nil, err
	}

	out := &Export{ExportedAt: s.opts.stamp(), Count: page.Total, Rows: make([]ExportRow, 0, page.Total)}
	for _, t := range page.Transactions {
		out.Rows = append(out.Rows, ExportRow{Transaction: t, FormattedAmount: FormatAmount(t.Amount, t.Currency)})
	}
	return out, nil
}

// FormatAmount renders an amount in minor units for display, e.g.
// "$12.34". Unknown currency codes fall back to "<amount> <code>".
func FormatAmount(amount int64, currency string) string {
	if money.GetCurrency(currency) == nil {
		return fmt.Sprintf("%d %s", amount, currency)
	}
	return money.New(amount, currency).Display()
}
