package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campusportal/internal/model"
	"campusportal/internal/realtime"
)

// ChangeNotifier is told which identities' stored profiles changed.
type ChangeNotifier interface {
	ProfileChanged(ctx context.Context, authID string) error
	ProfilesChanged(ctx context.Context) error
}

type ProfileLookup interface {
	FindByID(ctx context.Context, role model.Role, id string) (model.Profile, error)
}

var profileTables = map[string]model.Role{
	"students": model.RoleStudent,
	"faculty":  model.RoleFaculty,
}

// Tables whose rows are loaded eagerly with a student profile.
var studentRelatedTables = map[string]bool{
	"attendance": true,
	"marks":      true,
	"payments":   true,
}

// StartProfileInvalidationJob reports changes to profile rows, and to rows
// loaded with them, to the notifier. The subscription is open when it
// returns.
func StartProfileInvalidationJob(ctx context.Context, source realtime.Source, lookup ProfileLookup, notifier ChangeNotifier, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sub, err := source.Subscribe(ctx, "", realtime.Filter{})
	if err != nil {
		return err
	}

	go func() {
		defer sub.Close()
		for event := range sub.C {
			eventCtx, cancel := context.WithTimeout(ctx, timeout)
			if err := invalidateFor(eventCtx, event, lookup, notifier); err != nil {
				logger.Warn("profile invalidation failed", "table", event.Table, "op", event.Op, "error", err)
			}
			cancel()
		}
	}()
	return nil
}

func invalidateFor(ctx context.Context, event realtime.Event, lookup ProfileLookup, notifier ChangeNotifier) error {
	if event.Op == realtime.OpResync {
		return notifier.ProfilesChanged(ctx)
	}
	if _, ok := profileTables[event.Table]; ok {
		if authID := field(event, "auth_id"); authID != "" {
			return notifier.ProfileChanged(ctx, authID)
		}
		// A profile row without a link may be the one an email fallback
		// resolved; only a full flush is safe.
		return notifier.ProfilesChanged(ctx)
	}
	if !studentRelatedTables[event.Table] {
		return nil
	}
	studentID := field(event, "student_id")
	if studentID == "" || lookup == nil {
		return notifier.ProfilesChanged(ctx)
	}
	student, err := lookup.FindByID(ctx, model.RoleStudent, studentID)
	if err != nil {
		return err
	}
	if student.AuthID == nil {
		return nil
	}
	return notifier.ProfileChanged(ctx, *student.AuthID)
}

func field(event realtime.Event, name string) string {
	v, ok := event.Record[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
