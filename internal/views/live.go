package views

import (
	"context"
	"log/slog"
	"reflect"

	"campusportal/internal/realtime"
)

// live sends first, then re-runs the pipeline whenever any subscription
// fires. Notifications that arrive while a run is in progress collapse into
// one more run. Failed runs are logged and the previous result stands.
func live[T any](ctx context.Context, logger *slog.Logger, first T, subs []*realtime.Subscription, run func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	out <- first

	signal := make(chan struct{}, 1)
	for _, sub := range subs {
		go func(sub *realtime.Subscription) {
			for range sub.C {
				select {
				case signal <- struct{}{}:
				default:
				}
			}
		}(sub)
	}

	go func() {
		defer close(out)
		defer func() {
			for _, sub := range subs {
				sub.Close()
			}
		}()
		last := first
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
			next, err := run(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("live view refresh failed", "error", err)
				}
				continue
			}
			if reflect.DeepEqual(next, last) {
				continue
			}
			last = next
			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
