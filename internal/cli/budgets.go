package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/services"
)

// Budget creates a budget for an expense category. The period defaults to
// the current calendar month.
func (a *App) Budget(ctx context.Context, _ []string) error {
	cat, err := a.pickCategory(ctx, models.TransactionExpense)
	if err != nil {
		return err
	}

	amountIn, err := GetSimpleText(a.reader, "Limit", a.out)
	if err != nil {
		return err
	}
	amount, err := parseAmount(amountIn)
	if err != nil {
		return err
	}

	from, to := monthBounds(a.today())
	startIn, err := GetTextDefault(a.reader, "Start date (YYYY-MM-DD)", from.Format(time.DateOnly), a.out)
	if err != nil {
		return err
	}
	start, err := parseDate(startIn, from)
	if err != nil {
		return err
	}
	endIn, err := GetTextDefault(a.reader, "End date (YYYY-MM-DD)", to.Format(time.DateOnly), a.out)
	if err != nil {
		return err
	}
	end, err := parseDate(endIn, to)
	if err != nil {
		return err
	}
	// Cover the whole end day.
	end = end.Add(24*time.Hour - time.Second)

	name, err := GetSimpleText(a.reader, "Name (optional)", a.out)
	if err != nil {
		return err
	}

	b, err := a.budgets.CreateBudget(ctx, services.NewBudget{
		Name:       name,
		CategoryID: cat.ID,
		Amount:     amount,
		StartDate:  start,
		EndDate:    end,
		Cadence:    "monthly",
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created budget %s: ", b.ID)
	a.printBudget(b)
	return nil
}

// Budgets lists the budgets of the current user with their tracking.
func (a *App) Budgets(ctx context.Context, _ []string) error {
	list, err := a.budgets.ListBudgets(ctx, services.BudgetFilter{})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No budgets yet")
		return nil
	}
	for i := range list {
		a.printBudget(&list[i])
	}
	return nil
}

func (a *App) printBudget(b *models.Budget) {
	mark := "on track"
	if !b.Tracking.OnTrack {
		mark = "OVER"
	} else if b.Tracking.PercentageUsed >= float64(b.AlertThreshold) && b.AlertThreshold > 0 {
		mark = "near limit"
	}
	fmt.Fprintf(a.out, "%s  %s..%s  %s / %s (%.2f%%) %s [%s]\n",
		b.Name,
		b.Period.StartDate.Format(time.DateOnly), b.Period.EndDate.Format(time.DateOnly),
		a.money(b.Tracking.CurrentSpent, b.Currency), a.money(b.Amount, b.Currency),
		b.Tracking.PercentageUsed, mark, strings.ToLower(string(b.Status)))
}
