package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Listener forwards Postgres NOTIFY payloads on one channel into a Hub.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	hub     *Hub
	retry   time.Duration
	logger  *slog.Logger
}

func NewListener(pool *pgxpool.Pool, channel string, hub *Hub, retry time.Duration, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Listener{pool: pool, channel: channel, hub: hub, retry: retry, logger: logger}
}

// Run listens until ctx ends, reconnecting after connection failures. Every
// successful LISTEN is followed by a Resync event.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("change listener disconnected", "channel", l.channel, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retry):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire listen connection")
	}
	// A LISTEN connection is never handed back to the pool for reuse.
	defer func() {
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return errors.Wrap(err, "listen")
	}
	l.logger.Info("listening for table changes", "channel", l.channel)
	// Nothing was heard before this point, so consumers must re-read.
	l.hub.Publish(Resync())
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		event, err := DecodeEvent([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("dropping malformed change notification", "error", err)
			continue
		}
		l.hub.Publish(event)
	}
}

func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode change payload")
	}
	if e.Table == "" {
		return Event{}, errors.New("change payload has no table")
	}
	return e, nil
}
