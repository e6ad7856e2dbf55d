package auth

import (
	"context"
	"sync"

	"campusportal/internal/model"
)

// Session is an authenticated identity together with the role it claims.
type Session struct {
	model.Identity
	Role model.Role
}

// Provider exposes the ambient session. A nil session with a nil error means
// nobody is signed in.
type Provider interface {
	Session(ctx context.Context) (*Session, error)
}

type sessionKey struct{}

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}

// ContextProvider reads the session placed on the request context by the
// HTTP auth middleware.
type ContextProvider struct{}

func (ContextProvider) Session(ctx context.Context) (*Session, error) {
	return SessionFromContext(ctx), nil
}

// Holder is a client-instance session slot: one signed-in identity at a time,
// replaced on sign-in and cleared on sign-out.
type Holder struct {
	mu      sync.RWMutex
	session *Session
}

func (h *Holder) Session(context.Context) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return nil, nil
	}
	copied := *h.session
	return &copied, nil
}

func (h *Holder) SignIn(session Session) {
	h.mu.Lock()
	h.session = &session
	h.mu.Unlock()
}

// SignOut clears the slot and returns the identity that was signed in, if any.
func (h *Holder) SignOut() (model.Identity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return model.Identity{}, false
	}
	identity := h.session.Identity
	h.session = nil
	return identity, true
}
