package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/services"
)

const defaultListLimit = 20

// Categories prints the active categories as a tree, optionally limited to
// one type.
func (a *App) Categories(ctx context.Context, args []string) error {
	var f services.CategoryFilter
	f.ActiveOnly = true
	if len(args) > 0 {
		f.Type = models.CategoryType(strings.ToLower(args[0]))
		if !f.Type.Valid() {
			return fmt.Errorf("%w: unknown category type %q", common.ErrValidation, args[0])
		}
	}

	list, err := a.categories.ListCategories(ctx, f)
	if err != nil {
		return err
	}
	month := a.today().Format("2006-01")
	for _, c := range list {
		line := strings.TrimSpace(fmt.Sprintf("%s %s (%s)", c.Icon, c.Name, c.Type))
		if u, ok := c.Usage.MonthlyUsage[month]; ok {
			line += fmt.Sprintf(" - %d this month, %s", u.Count, a.money(u.Amount, ""))
		}
		fmt.Fprintln(a.out, strings.Repeat("  ", c.Level)+line)
	}
	return nil
}

// Add records a transaction, prompting for every field. The type and
// category of the previous entry are offered as defaults.
func (a *App) Add(ctx context.Context, _ []string) error {
	def := string(a.state.LastType)
	if def == "" {
		def = string(models.TransactionExpense)
	}
	typeIn, err := GetTextDefault(a.reader, "Type (income/expense)", def, a.out)
	if err != nil {
		return err
	}
	typ, err := parseTransactionType(typeIn)
	if err != nil {
		return err
	}

	amountIn, err := GetSimpleText(a.reader, "Amount", a.out)
	if err != nil {
		return err
	}
	amount, err := parseAmount(amountIn)
	if err != nil {
		return err
	}

	cat, err := a.pickCategory(ctx, typ)
	if err != nil {
		return err
	}

	dateIn, err := GetTextDefault(a.reader, "Date (YYYY-MM-DD)", a.today().Format(time.DateOnly), a.out)
	if err != nil {
		return err
	}
	date, err := parseDate(dateIn, a.today())
	if err != nil {
		return err
	}
	if dateIn == a.today().Format(time.DateOnly) {
		date = a.now()
	}

	description, err := GetSimpleText(a.reader, "Description", a.out)
	if err != nil {
		return err
	}
	tags, err := GetSimpleText(a.reader, "Tags (comma separated, optional)", a.out)
	if err != nil {
		return err
	}

	t, err := a.transactions.CreateTransaction(ctx, services.NewTransaction{
		Amount:      amount,
		Type:        typ,
		Date:        date,
		Description: description,
		CategoryID:  cat.ID,
		Tags:        splitTags(tags),
	})
	if err != nil {
		return err
	}

	a.state.LastType = typ
	a.state.LastCategoryID = cat.ID
	a.saveState(ctx)

	fmt.Fprintf(a.out, "Added %s %s%s to %s\n", t.ID, sign(t.Type), a.money(t.Amount, t.Currency), cat.Name)
	if t.BudgetImpact != nil {
		fmt.Fprintf(a.out, "Budget remaining: %s\n", a.money(t.BudgetImpact.RemainingBudget, t.Currency))
	}
	return nil
}

// List prints the most recent transactions, newest first.
func (a *App) List(ctx context.Context, args []string) error {
	limit := defaultListLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: usage: list [n]", common.ErrValidation)
		}
		limit = n
	}

	page, err := a.transactions.GetTransactions(ctx, services.TransactionFilter{Limit: limit})
	if err != nil {
		return err
	}
	if page.Total == 0 {
		fmt.Fprintln(a.out, "No transactions yet")
		return nil
	}

	names, err := a.categoryNames(ctx)
	if err != nil {
		return err
	}
	for _, t := range page.Transactions {
		fmt.Fprintf(a.out, "%s  %s  %s%s  %-18s %s\n",
			t.ID, t.Date.Format(time.DateOnly), sign(t.Type), a.money(t.Amount, t.Currency), names[t.CategoryID], t.Description)
	}
	if page.HasMore {
		fmt.Fprintf(a.out, "... %d more\n", page.Total-len(page.Transactions))
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: show <id>", common.ErrValidation)
	}
	t, err := a.transactions.GetTransaction(ctx, args[0])
	if err != nil {
		return err
	}
	cat, err := a.categories.GetCategory(ctx, t.CategoryID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "ID:          %s\n", t.ID)
	fmt.Fprintf(a.out, "Date:        %s\n", t.Date.Local().Format(time.DateTime))
	fmt.Fprintf(a.out, "Type:        %s\n", t.Type)
	fmt.Fprintf(a.out, "Amount:      %s\n", a.money(t.Amount, t.Currency))
	fmt.Fprintf(a.out, "Category:    %s\n", cat.Name)
	fmt.Fprintf(a.out, "Description: %s\n", t.Description)
	fmt.Fprintf(a.out, "Status:      %s\n", t.Status)
	if len(t.Tags) > 0 {
		fmt.Fprintf(a.out, "Tags:        %s\n", strings.Join(t.Tags, ", "))
	}
	if t.BudgetImpact != nil {
		fmt.Fprintf(a.out, "Budget left: %s\n", a.money(t.BudgetImpact.RemainingBudget, t.Currency))
	}
	return nil
}

// Delete soft-deletes a transaction after confirmation.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: delete <id>", common.ErrValidation)
	}
	t, err := a.transactions.GetTransaction(ctx, args[0])
	if err != nil {
		return err
	}

	ok, err := Confirm(a.reader, fmt.Sprintf("Delete %q (%s)?", t.Description, a.money(t.Amount, t.Currency)), a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.transactions.DeleteTransaction(ctx, t.ID); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted")
	return nil
}

// Summary prints totals over all live transactions, broken down by
// category and by period.
func (a *App) Summary(ctx context.Context, args []string) error {
	var opts services.SummaryOptions
	if len(args) > 0 {
		opts.GroupBy = services.GroupBy(strings.ToLower(args[0]))
	}

	sum, err := a.transactions.GetTransactionSummary(ctx, opts)
	if err != nil {
		return err
	}
	names, err := a.categoryNames(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Income:       %s\n", a.money(sum.TotalIncome, ""))
	fmt.Fprintf(a.out, "Expenses:     %s\n", a.money(sum.TotalExpenses, ""))
	fmt.Fprintf(a.out, "Net:          %s\n", a.money(sum.NetCashFlow, ""))
	fmt.Fprintf(a.out, "Transactions: %d (average %s)\n", sum.TransactionCount, sum.AverageTransaction.StringFixed(2))

	if len(sum.ByCategory) > 0 {
		fmt.Fprintln(a.out, "By category:")
		ids := slices.Collect(maps.Keys(sum.ByCategory))
		slices.SortFunc(ids, func(x, y string) int { return strings.Compare(names[x], names[y]) })
		for _, id := range ids {
			b := sum.ByCategory[id]
			fmt.Fprintf(a.out, "  %-20s +%s -%s (%d)\n", names[id], a.money(b.Income, ""), a.money(b.Expenses, ""), b.Count)
		}
	}
	if len(sum.ByPeriod) > 0 {
		fmt.Fprintln(a.out, "By period:")
		for _, k := range slices.Sorted(maps.Keys(sum.ByPeriod)) {
			b := sum.ByPeriod[k]
			fmt.Fprintf(a.out, "  %-20s +%s -%s (%d)\n", k, a.money(b.Income, ""), a.money(b.Expenses, ""), b.Count)
		}
	}
	return nil
}

// pickCategory asks for a category of the given type by name or id.
func (a *App) pickCategory(ctx context.Context, typ models.TransactionType) (*models.Category, error) {
	list, err := a.categories.ListCategories(ctx, services.CategoryFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	list = slices.DeleteFunc(list, func(c models.Category) bool {
		return c.Type != models.CategoryBoth && string(c.Type) != string(typ)
	})

	var def string
	for _, c := range list {
		if c.ID == a.state.LastCategoryID {
			def = c.Name
		}
	}
	in, err := GetTextDefault(a.reader, "Category", def, a.out)
	if err != nil {
		return nil, err
	}
	return findCategory(list, in)
}

func findCategory(list []models.Category, in string) (*models.Category, error) {
	in = strings.TrimSpace(in)
	for i := range list {
		if list[i].ID == in || strings.EqualFold(list[i].Name, in) {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: category %q", common.ErrNotFound, in)
}

func (a *App) categoryNames(ctx context.Context) (map[string]string, error) {
	list, err := a.categories.ListCategories(ctx, services.CategoryFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(list))
	for _, c := range list {
		names[c.ID] = c.Name
	}
	return names, nil
}

// money formats amount in currency, or in the user's currency when empty.
func (a *App) money(amount int64, currency string) string {
	if currency == "" {
		currency = "IDR"
		if u, ok := a.identity.CurrentUser(); ok && u.Preferences.Currency != "" {
			currency = u.Preferences.Currency
		}
	}
	return services.FormatAmount(amount, currency)
}
