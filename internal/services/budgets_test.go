package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCategory_Hierarchy(t *testing.T) {
	w := newWorld(t)
	c := w.signedIn(t, "alice")
	ctx := context.Background()

	root, err := c.categories.CreateCategory(ctx, NewCategory{Name: "Pets", Type: models.CategoryExpense})
	require.NoError(t, err)
	assert.Equal(t, "/pets", root.Path)
	assert.Equal(t, 16, root.SortOrder, "placed after the sixteen default roots")
	assert.True(t, root.Budget.AllowBudgeting)

	child, err := c.categories.CreateCategory(ctx, NewCategory{Name: "Vet Bills", Type: models.CategoryExpense, ParentID: &root.ID})
	require.NoError(t, err)
	assert.Equal(t, "/pets/vet-bills", child.Path)
	assert.Equal(t, 1, child.Level)
	assert.Equal(t, 0, child.SortOrder)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	second, err := c.categories.CreateCategory(ctx, NewCategory{Name: "Food", Type: models.CategoryExpense, ParentID: &root.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, second.SortOrder)

	children, err := c.categories.ListCategories(ctx, CategoryFilter{ParentID: &root.ID})
	require.NoError(t, err)
	assert.Len(t, children, 2)

	roots, err := c.categories.ListCategories(ctx, CategoryFilter{ParentID: ptr(""), Type: models.CategoryIncome})
	require.NoError(t, err)
	assert.Len(t, roots, 5)
}

func TestCreateCategory_Rejections(t *testing.T) {
	w := newWorld(t)
	alice := w.signedIn(t, "alice")
	bob := w.signedIn(t, "bob")
	ctx := context.Background()

	_, err := alice.categories.CreateCategory(ctx, NewCategory{Name: " ", Type: models.CategoryExpense})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = alice.categories.CreateCategory(ctx, NewCategory{Name: "X", Type: "transfer"})
	assert.ErrorIs(t, err, common.ErrValidation)

	bobs := bob.category(t, "Travel")
	_, err = alice.categories.CreateCategory(ctx, NewCategory{Name: "Hotels", Type: models.CategoryExpense, ParentID: &bobs.ID})
	assert.ErrorIs(t, err, common.ErrAuthorization)

	_, err = alice.categories.GetCategory(ctx, bobs.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListCategories_ActiveOnly(t *testing.T) {
	w := newWorld(t)
	c := w.signedIn(t, "alice")
	ctx := context.Background()

	cat, err := c.categories.CreateCategory(ctx, NewCategory{Name: "Old", Type: models.CategoryExpense})
	require.NoError(t, err)
	cat.IsActive = false
	require.NoError(t, w.engine.Put(ctx, "categories", cat))

	all, err := c.categories.ListCategories(ctx, CategoryFilter{})
	require.NoError(t, err)
	active, err := c.categories.ListCategories(ctx, CategoryFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, all, 17)
	assert.Len(t, active, 16)
	assert.Equal(t, models.CategoryExpense, all[0].Type)
}

func TestCreateBudget_Validation(t *testing.T) {
	w := newWorld(t)
	c := w.signedIn(t, "alice")
	ctx := context.Background()
	food := c.category(t, "Food & Dining")
	jan1, jan31 := day(2025, 1, 1), day(2025, 1, 31)

	cases := map[string]NewBudget{
		"zero amount":     {CategoryID: food.ID, Amount: 0, StartDate: jan1, EndDate: jan31},
		"missing period":  {CategoryID: food.ID, Amount: 10},
		"reversed period": {CategoryID: food.ID, Amount: 10, StartDate: jan31, EndDate: jan1},
		"bad type":        {CategoryID: food.ID, Amount: 10, StartDate: jan1, EndDate: jan31, BudgetType: "magic"},
		"bad threshold":   {CategoryID: food.ID, Amount: 10, StartDate: jan1, EndDate: jan31, AlertThreshold: 150},
		"income category": {CategoryID: c.category(t, "Salary").ID, Amount: 10, StartDate: jan1, EndDate: jan31},
	}
	for name, in := range cases {
		_, err := c.budgets.CreateBudget(ctx, in)
		assert.ErrorIs(t, err, common.ErrValidation, name)
	}

	_, err := c.budgets.CreateBudget(ctx, NewBudget{CategoryID: "missing", Amount: 10, StartDate: jan1, EndDate: jan31})
	assert.ErrorIs(t, err, common.ErrAuthorization)
}

func TestCreateBudget_Defaults(t *testing.T) {
	w := newWorld(t)
	c := w.signedIn(t, "alice")
	ctx := context.Background()
	food := c.category(t, "Food & Dining")

	_, err := c.transactions.CreateTransaction(ctx, NewTransaction{
		Amount: 2500, Type: models.TransactionExpense, Date: day(2025, 1, 3),
		Description: "earlier", CategoryID: food.ID,
	})
	require.NoError(t, err)

	b, err := c.budgets.CreateBudget(ctx, NewBudget{CategoryID: food.ID, Amount: 10000, StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31)})
	require.NoError(t, err)
	assert.Equal(t, "Food & Dining budget", b.Name)
	assert.Equal(t, models.BudgetFixed, b.BudgetType)
	assert.Equal(t, 80, b.AlertThreshold)
	assert.Equal(t, "IDR", b.Currency)
	assert.Equal(t, models.BudgetActive, b.Status)
	assert.Equal(t, int64(2500), b.Tracking.CurrentSpent)
	assert.Equal(t, 25.0, b.Tracking.PercentageUsed)
}

func TestBudgets_ListRecalculateDelete(t *testing.T) {
	w := newWorld(t)
	alice := w.signedIn(t, "alice")
	bob := w.signedIn(t, "bob")
	ctx := context.Background()
	food := alice.category(t, "Food & Dining")
	travel := alice.category(t, "Travel")

	jan, err := alice.budgets.CreateBudget(ctx, NewBudget{Name: "Jan food", CategoryID: food.ID, Amount: 100, StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31)})
	require.NoError(t, err)
	feb, err := alice.budgets.CreateBudget(ctx, NewBudget{Name: "Feb food", CategoryID: food.ID, Amount: 100, StartDate: day(2025, 2, 1), EndDate: day(2025, 2, 28)})
	require.NoError(t, err)
	_, err = alice.budgets.CreateBudget(ctx, NewBudget{Name: "Trips", CategoryID: travel.ID, Amount: 100, StartDate: day(2025, 1, 1), EndDate: day(2025, 12, 31)})
	require.NoError(t, err)

	list, err := alice.budgets.ListBudgets(ctx, BudgetFilter{CategoryID: food.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Jan food", list[0].Name)

	on := day(2025, 2, 10)
	list, err = alice.budgets.ListBudgets(ctx, BudgetFilter{ActiveOn: &on})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = alice.budgets.SetBudgetStatus(ctx, feb.ID, models.BudgetCompleted)
	require.NoError(t, err)
	list, err = alice.budgets.ListBudgets(ctx, BudgetFilter{Status: models.BudgetActive})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	_, err = alice.budgets.SetBudgetStatus(ctx, feb.ID, "archived")
	assert.ErrorIs(t, err, common.ErrValidation)

	list, err = bob.budgets.ListBudgets(ctx, BudgetFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = bob.budgets.RecalculateBudget(ctx, jan.ID)
	assert.ErrorIs(t, err, common.ErrAuthorization)
	assert.ErrorIs(t, bob.budgets.DeleteBudget(ctx, jan.ID), common.ErrAuthorization)

	w.clock.Advance(time.Hour)
	re, err := alice.budgets.RecalculateBudget(ctx, jan.ID)
	require.NoError(t, err)
	require.NotNil(t, re.Tracking.LastCalculatedAt)
	assert.True(t, w.clock.Now().Equal(*re.Tracking.LastCalculatedAt))

	require.NoError(t, alice.budgets.DeleteBudget(ctx, jan.ID))
	_, err = alice.budgets.GetBudget(ctx, jan.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, alice.budgets.DeleteBudget(ctx, jan.ID), common.ErrNotFound)
}

func TestComputeTracking(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tr := computeTracking(300, 100, now)
	assert.Equal(t, 33.33, tr.PercentageUsed)
	assert.True(t, tr.OnTrack)

	tr = computeTracking(0, 0, now)
	assert.Zero(t, tr.PercentageUsed)
	assert.True(t, tr.OnTrack)

	tr = computeTracking(100, 100, now)
	assert.Equal(t, 100.0, tr.PercentageUsed)
	assert.True(t, tr.OnTrack)

	tr = computeTracking(100000, 100001, now)
	assert.False(t, tr.OnTrack)
}

func TestDefaultCategories(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cats, err := defaultCategories("u1", now)
	require.NoError(t, err)
	require.Len(t, cats, 16)

	seen := map[string]bool{}
	for _, c := range cats {
		assert.Equal(t, "u1", c.UserID)
		assert.False(t, seen[c.ID], "ids are unique")
		seen[c.ID] = true
		assert.Equal(t, c.Type == models.CategoryExpense, c.Budget.AllowBudgeting, c.Name)
	}
	assert.Equal(t, "/food-&-dining", categoryPath("Food & Dining"))
	assert.Equal(t, "/other-income", categoryPath("Other  Income"))

	_, err = loadSeed([]byte("income: [{name: X, colour: red}]"))
	assert.Error(t, err)
}

func TestPeriodKey(t *testing.T) {
	ts := time.Date(2025, 3, 12, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	for g, want := range map[GroupBy]string{
		GroupByDay:   "2025-03-12",
		GroupByWeek:  "2025-03-09",
		GroupByMonth: "2025-03",
		"":           "2025-03",
		GroupByYear:  "2025",
	} {
		got, err := periodKey(ts, g)
		require.NoError(t, err)
		assert.Equal(t, want, got, g)
	}
}
