package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"campusportal/internal/auth"
	"campusportal/internal/metrics"
	"campusportal/internal/model"
	"campusportal/internal/operations"
)

const defaultResolveTimeout = 10 * time.Second

// maxChangeRereads bounds how often one resolution re-reads the store after
// change notifications for its identity arrive mid-flight.
const maxChangeRereads = 3

// epoch snapshots the per-identity counters. all and key move on sign-out
// and explicit invalidation; changeAll and change move on change
// notifications for the stored rows.
type epoch struct {
	all       uint64
	key       uint64
	changeAll uint64
	change    uint64
}

func (e epoch) sameSession(other epoch) bool {
	return e.all == other.all && e.key == other.key
}

// Resolver turns the ambient session into a domain profile. Results are
// cached per auth identity; concurrent resolutions for one identity share a
// single store round trip.
type Resolver struct {
	store    Store
	cache    *Cache
	sessions auth.Provider
	logger   *slog.Logger
	validate *validator.Validate
	timeout  time.Duration

	group singleflight.Group

	mu        sync.Mutex
	epochAll  uint64
	epochs    map[string]uint64
	changeAll uint64
	changes   map[string]uint64
}

type Option func(*Resolver)

// WithTimeout bounds the shared store phase of a resolution. Waiters still
// give up on their own context.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithValidator(v *validator.Validate) Option {
	return func(r *Resolver) {
		if v != nil {
			r.validate = v
		}
	}
}

func NewResolver(store Store, cache *Cache, sessions auth.Provider, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store:    store,
		cache:    cache,
		sessions: sessions,
		logger:   logger,
		validate: validator.New(),
		timeout:  defaultResolveTimeout,
		epochs:   make(map[string]uint64),
		changes:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, forceRefresh bool) (model.Profile, error) {
	profile, err := r.resolve(ctx, forceRefresh)
	metrics.Resolutions.WithLabelValues(outcome(err)).Inc()
	return profile, err
}

func (r *Resolver) resolve(ctx context.Context, forceRefresh bool) (model.Profile, error) {
	session, err := r.sessions.Session(ctx)
	if err != nil {
		return model.Profile{}, operations.New(operations.CodeUnauthenticated, err)
	}
	if session == nil || session.AuthID == "" {
		return model.Profile{}, operations.ErrUnauthenticated
	}
	if session.Role == model.RoleAdmin {
		return model.Profile{}, operations.New(operations.CodeNotFound, errors.New("administrators have no domain profile"))
	}

	key := session.AuthID
	if !forceRefresh {
		if profile, ok := r.cache.Get(ctx, key); ok {
			if session.Role == "" || profile.Role == session.Role {
				return profile, nil
			}
			r.logger.Debug("cached profile has another role", "auth_id", key, "cached_role", profile.Role, "role", session.Role)
		}
	}

	issued := r.currentEpoch(key)
	flightKey := fmt.Sprintf("%s:%s:%d:%d", session.Role, key, issued.all, issued.key)
	ch := r.group.DoChan(flightKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.fetchAndCommit(fctx, *session, issued)
	})

	select {
	case <-ctx.Done():
		return model.Profile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Profile{}, res.Err
		}
		return res.Val.(model.Profile), nil
	}
}

// SignOut forgets everything resolved for the identity. Resolutions already
// in flight for it complete without touching the cache.
func (r *Resolver) SignOut(ctx context.Context, authID string) error {
	return r.Invalidate(ctx, authID)
}

func (r *Resolver) Invalidate(ctx context.Context, authID string) error {
	r.mu.Lock()
	r.epochs[authID]++
	r.mu.Unlock()
	return r.cache.Invalidate(ctx, authID)
}

func (r *Resolver) InvalidateAll(ctx context.Context) error {
	r.mu.Lock()
	r.epochAll++
	r.mu.Unlock()
	return r.cache.InvalidateAll(ctx)
}

// ProfileChanged records that rows loaded with the identity's profile
// changed. Resolutions in flight for it re-read the store before caching.
func (r *Resolver) ProfileChanged(ctx context.Context, authID string) error {
	r.mu.Lock()
	r.changes[authID]++
	r.mu.Unlock()
	return r.cache.Invalidate(ctx, authID)
}

// ProfilesChanged is ProfileChanged for every identity, used when the
// changed row cannot be attributed or notifications may have been missed.
func (r *Resolver) ProfilesChanged(ctx context.Context) error {
	r.mu.Lock()
	r.changeAll++
	r.mu.Unlock()
	return r.cache.InvalidateAll(ctx)
}

func (r *Resolver) currentEpoch(authID string) epoch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return epoch{
		all:       r.epochAll,
		key:       r.epochs[authID],
		changeAll: r.changeAll,
		change:    r.changes[authID],
	}
}

// fetchAndCommit reads the profile and caches it. A read that overlapped a
// change notification for the identity is repeated; one that overlapped a
// sign-out or invalidation is discarded.
func (r *Resolver) fetchAndCommit(ctx context.Context, session auth.Session, issued epoch) (model.Profile, error) {
	seen := issued
	for reread := 0; ; reread++ {
		profile, err := r.fetch(ctx, session)
		if err != nil {
			return model.Profile{}, err
		}
		now := r.currentEpoch(session.AuthID)
		if !now.sameSession(issued) || !r.sessionCurrent(ctx, session) {
			r.logger.Info("discarding stale profile resolution", "auth_id", session.AuthID)
			return model.Profile{}, operations.ErrStaleSession
		}
		if now != seen {
			if reread < maxChangeRereads {
				r.logger.Debug("profile changed during resolution, reading again", "auth_id", session.AuthID)
				seen = now
				continue
			}
			// Still churning: serve the latest read without caching it.
			return profile, nil
		}

		if err := r.cache.Put(ctx, session.AuthID, profile); err != nil {
			r.logger.Warn("profile cache write failed", "auth_id", session.AuthID, "error", err)
			return profile, nil
		}
		// A notification or sign-out that landed between the check and the
		// write may have been cleared by our Put.
		if after := r.currentEpoch(session.AuthID); after != seen {
			if err := r.cache.Invalidate(ctx, session.AuthID); err != nil {
				r.logger.Warn("profile cache invalidation failed", "auth_id", session.AuthID, "error", err)
			}
			if !after.sameSession(issued) {
				return model.Profile{}, operations.ErrStaleSession
			}
		}
		return profile, nil
	}
}

func (r *Resolver) sessionCurrent(ctx context.Context, session auth.Session) bool {
	current, err := r.sessions.Session(ctx)
	if err != nil || current == nil {
		return false
	}
	return current.AuthID == session.AuthID && current.Role == session.Role
}

// fetch runs the store phase, retrying once when the backend is unreachable.
func (r *Resolver) fetch(ctx context.Context, session auth.Session) (model.Profile, error) {
	start := time.Now()
	defer func() { metrics.ResolveDuration.Observe(time.Since(start).Seconds()) }()

	profile, err := r.lookup(ctx, session)
	if errors.Is(err, operations.ErrTransientIO) && ctx.Err() == nil {
		r.logger.Warn("profile lookup failed, retrying", "auth_id", session.AuthID, "error", err)
		profile, err = r.lookup(ctx, session)
	}
	return profile, err
}

func (r *Resolver) lookup(ctx context.Context, session auth.Session) (model.Profile, error) {
	roles := candidateRoles(session.Role)

	var linked []model.Profile
	for _, role := range roles {
		profile, err := r.store.FindByAuthID(ctx, role, session.AuthID)
		switch {
		case err == nil:
			linked = append(linked, profile)
		case !errors.Is(err, operations.ErrNotFound):
			return model.Profile{}, transient(err)
		}
	}
	switch len(linked) {
	case 0:
	case 1:
		return r.checked(linked[0])
	default:
		return model.Profile{}, operations.New(operations.CodeConflict,
			fmt.Errorf("auth identity %s is linked to both a student and a faculty profile", session.AuthID))
	}

	email := strings.TrimSpace(session.Email)
	if email == "" {
		return model.Profile{}, operations.New(operations.CodeNotFound, errors.New("no profile linked and no email to fall back on"))
	}

	matches := make(map[model.Role][]model.Profile)
	for _, role := range model.ProfileRoles {
		found, err := r.store.FindByEmail(ctx, role, email)
		if err != nil {
			return model.Profile{}, transient(err)
		}
		if len(found) > 0 {
			matches[role] = found
		}
	}

	var chosen *model.Profile
	for _, role := range roles {
		if found := matches[role]; len(found) > 0 {
			chosen = &found[0]
			break
		}
	}
	if chosen == nil {
		return model.Profile{}, operations.New(operations.CodeNotFound, fmt.Errorf("no %s profile for %s", session.Role, email))
	}
	if len(matches) > 1 {
		return model.Profile{}, operations.New(operations.CodeConflict,
			fmt.Errorf("email %s matches both a student and a faculty profile", email))
	}

	profile, err := r.checked(*chosen)
	if err != nil {
		return model.Profile{}, err
	}
	if !profile.LinkedTo(session.AuthID) {
		r.backfill(ctx, &profile, session.AuthID)
	}
	return profile, nil
}

// backfill links the profile to the identity. Failure leaves the returned
// profile untouched and the next resolution will try again.
func (r *Resolver) backfill(ctx context.Context, profile *model.Profile, authID string) {
	if err := r.store.LinkAuthID(ctx, profile.Role, profile.ID, authID); err != nil {
		metrics.Backfills.WithLabelValues("failed").Inc()
		r.logger.Warn("auth_id backfill failed",
			"profile_id", profile.ID,
			"role", profile.Role,
			"auth_id", authID,
			"error", err,
		)
		return
	}
	metrics.Backfills.WithLabelValues("ok").Inc()
	r.logger.Info("auth_id backfilled", "profile_id", profile.ID, "role", profile.Role)
	linked := authID
	profile.AuthID = &linked
}

func (r *Resolver) checked(profile model.Profile) (model.Profile, error) {
	if err := r.validate.Struct(profile); err != nil {
		return model.Profile{}, operations.New(operations.CodeValidation, err)
	}
	return profile, nil
}

func candidateRoles(role model.Role) []model.Role {
	if role.HasProfile() {
		return []model.Role{role}
	}
	return model.ProfileRoles
}

func transient(err error) error {
	if code := operations.Code(err); code != "" {
		return err
	}
	return operations.New(operations.CodeTransientIO, err)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := operations.Code(err); code != "" {
		return code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
