package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"campusportal/internal/config"
	"campusportal/internal/db"
	"campusportal/internal/fees"
	"campusportal/internal/kv"
	"campusportal/internal/logging"
	"campusportal/internal/memstore"
	"campusportal/internal/profile"
	"campusportal/internal/repository"
	"campusportal/internal/views"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, logging.Options{Env: cfg.Env, Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, cleanup, err := newCommandLine(ctx, cfg, logger, os.Stdout)
	if err != nil {
		log.Fatalf("portalctl init failed: %v", err)
	}
	err = cli.run(ctx, os.Args)
	cleanup()
	if errors.Is(err, errHelp) {
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("portalctl: %v", err)
	}
}

// newCommandLine wires the CLI against the configured store. The CLI always
// uses a local cache: the SQLite file when CACHE_BACKEND=sqlite, memory
// otherwise.
func newCommandLine(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) (*commandLine, func(), error) {
	rules := fees.DefaultRules
	if cfg.FeeCategoryKeywords != "" {
		parsed, err := fees.ParseRules(cfg.FeeCategoryKeywords)
		if err != nil {
			return nil, nil, err
		}
		rules = parsed
	}

	var backing kv.Store = kv.NewMemory()
	if cfg.CacheBackend == "sqlite" {
		sqlite, err := kv.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		backing = sqlite
	}
	cleanup := func() { _ = backing.Close() }

	cli := &commandLine{out: out, cache: profile.NewCache(backing, logger)}
	if cfg.Store == "memory" {
		cli.store = memstore.New(nil)
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closeCache := cleanup
		cleanup = func() {
			pool.Close()
			closeCache()
		}
		cli.store = repository.NewStore(pool)
		cli.migrate = func(ctx context.Context) error {
			return db.NewStore(pool).Migrate(ctx, cfg.ChangeChannel)
		}
	}
	cli.views = views.NewService(cli.store, cli.store, fees.NewClassifier(rules), nil, logger)
	return cli, cleanup, nil
}
