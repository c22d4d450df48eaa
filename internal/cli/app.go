package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/logging"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/services"
)

// Services groups the domain services the App drives.
type Services struct {
	Identity     *services.IdentityManager
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Budgets      *services.BudgetService
}

// appState is remembered across runs in the session cache.
type appState struct {
	LastType       models.TransactionType `json:"lastType,omitempty"`
	LastCategoryID string                 `json:"lastCategoryId,omitempty"`
}

type App struct {
	identity     *services.IdentityManager
	transactions *services.TransactionService
	categories   *services.CategoryService
	budgets      *services.BudgetService

	logger logging.Logger
	now    func() time.Time
	reader *bufio.Reader
	out    io.Writer
	state  appState
}

func NewApp(svc Services, logger logging.Logger, in io.Reader, out io.Writer) *App {
	if logger == nil {
		logger = logging.Nop()
	}
	return &App{
		identity:     svc.Identity,
		transactions: svc.Transactions,
		categories:   svc.Categories,
		budgets:      svc.Budgets,
		logger:       logger,
		now:          time.Now,
		reader:       bufio.NewReader(in),
		out:          out,
	}
}

// Run restores the cached session and runs the REPL until the user exits,
// the input ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.identity.LoadSession(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	fmt.Fprintln(a.out, "Welcome to fintrack (type 'help' for commands)")
	if u, ok := a.identity.CurrentUser(); ok {
		fmt.Fprintf(a.out, "Signed in as %s\n", u.Username)
		a.restoreState(ctx)
	}

	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) isLoggedIn() bool {
	return a.identity.IsAuthenticated()
}

func (a *App) status() string {
	if u, ok := a.identity.CurrentUser(); ok {
		return fmt.Sprintf(" (%s)", u.Username)
	}
	return ""
}

func (a *App) restoreState(ctx context.Context) {
	a.state = appState{}
	if _, err := a.identity.LoadAppState(ctx, &a.state); err != nil {
		a.logger.Warn(ctx, "failed to load app state", "error", err)
	}
}

func (a *App) saveState(ctx context.Context) {
	if err := a.identity.SaveAppState(ctx, a.state); err != nil {
		a.logger.Warn(ctx, "failed to save app state", "error", err)
	}
}

func (a *App) today() time.Time {
	return a.now().UTC()
}
