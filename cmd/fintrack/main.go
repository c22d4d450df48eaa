package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/fintrack/internal/auth"
	"github.com/dmitrijs2005/fintrack/internal/buildinfo"
	"github.com/dmitrijs2005/fintrack/internal/cli"
	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/config"
	"github.com/dmitrijs2005/fintrack/internal/cryptox"
	"github.com/dmitrijs2005/fintrack/internal/filex"
	"github.com/dmitrijs2005/fintrack/internal/logging"
	"github.com/dmitrijs2005/fintrack/internal/repositories/metadata"
	"github.com/dmitrijs2005/fintrack/internal/services"
	"github.com/dmitrijs2005/fintrack/internal/storage/sqlstore"
	"go.uber.org/multierr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	if s, ok := logger.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureFiles(cfg); err != nil {
		return err
	}

	store := sqlstore.New(cfg.DSN, sqlstore.WithLogger(logger))
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open record database: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	repo, closeCache, err := metadata.Open(ctx, cfg.CachePath)
	if err != nil {
		return fmt.Errorf("failed to open session cache: %w", err)
	}
	defer func() { err = multierr.Append(err, closeCache()) }()

	secret := cfg.Secret
	if secret == "" {
		if secret, err = common.MakeRandHexString(32); err != nil {
			return err
		}
		logger.Warn(ctx, "no secret configured, sessions will not survive a restart")
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithSessionTimeout(cfg.SessionTimeout),
		services.WithWriteLock(&services.WriteLock{}),
	}
	cache := metadata.NewSealedStore(repo, cryptox.DeriveKey(secret, "cache"))
	identity := services.NewIdentityManager(store, cache, auth.NewTokens([]byte(secret), nil), opts...)

	app := cli.NewApp(cli.Services{
		Identity:     identity,
		Transactions: services.NewTransactionService(store, identity, opts...),
		Categories:   services.NewCategoryService(store, identity, opts...),
		Budgets:      services.NewBudgetService(store, identity, opts...),
	}, logger, os.Stdin, os.Stdout)

	return app.Run(ctx)
}

// ensureFiles creates the directories of the local database files.
func ensureFiles(cfg *config.Config) error {
	if sqlstore.DialectFor(cfg.DSN).Name() == "sqlite" {
		if err := filex.EnsureParentDir(filex.SQLitePath(cfg.DSN)); err != nil {
			return err
		}
	}
	return filex.EnsureParentDir(cfg.CachePath)
}
