package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/shopspring/decimal"
)

// parseAmount reads a non-negative amount in minor units. Separators
// such as "1_000" or "1,000" are accepted.
func parseAmount(s string) (float64, error) {
	clean := strings.NewReplacer("_", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", common.ErrValidation, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount must not be negative", common.ErrValidation)
	}
	return d.InexactFloat64(), nil
}

// parseDate reads YYYY-MM-DD as a UTC date. An empty string yields def.
func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", common.ErrValidation, s)
	}
	return t, nil
}

func parseTransactionType(s string) (models.TransactionType, error) {
	switch strings.ToLower(s) {
	case "e", "expense":
		return models.TransactionExpense, nil
	case "i", "income":
		return models.TransactionIncome, nil
	}
	return "", fmt.Errorf("%w: type must be income or expense", common.ErrValidation)
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func monthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0).Add(-time.Second)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func sign(t models.TransactionType) string {
	if t == models.TransactionExpense {
		return "-"
	}
	return "+"
}
