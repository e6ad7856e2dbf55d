package db

import (
	"context"
	_ "embed"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

const channelPlaceholder = "__change_channel__"

var channelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return pool, nil
}

type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Migrate applies the embedded schema. It is idempotent. Row changes on the
// portal tables are announced with pg_notify on channel.
func (s *Store) Migrate(ctx context.Context, channel string) error {
	sql, err := Schema(channel)
	if err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return errors.Wrap(err, "apply schema")
		}
		return nil
	})
}

// Schema returns the DDL with the notification channel filled in.
func Schema(channel string) (string, error) {
	if !channelPattern.MatchString(channel) {
		return "", errors.Errorf("invalid notification channel %q", channel)
	}
	return strings.ReplaceAll(schema, channelPlaceholder, channel), nil
}
