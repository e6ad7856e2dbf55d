package http

import (
	"context"
	"net/http"

	"campusportal/internal/access"
	"campusportal/internal/auth"
)

// authMiddleware attaches the session carried by a valid bearer token. A
// missing or invalid token leaves the request anonymous; requireRoles turns
// that into a login redirect.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.verifier.ParseToken(token)
		if err != nil {
			s.logger.Debug("rejected access token", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.WithSession(r.Context(), claims.Session())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requiredRolesKey struct{}

// requiredRoles returns the role set the route was gated on, if any.
func requiredRoles(ctx context.Context) access.RoleSet {
	roles, _ := ctx.Value(requiredRolesKey{}).(access.RoleSet)
	return roles
}

func sessionState(session *auth.Session) access.SessionState {
	if session == nil {
		return access.Unauthenticated()
	}
	return access.Authenticated(session.Role)
}

func (s *Server) requireRoles(required access.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := sessionState(auth.SessionFromContext(r.Context()))
			decision := s.policy.Authorize(state, required, r.URL.RequestURI())
			switch decision.Kind {
			case access.Allow:
				ctx := context.WithValue(r.Context(), requiredRolesKey{}, required)
				next.ServeHTTP(w, r.WithContext(ctx))
			case access.Deny:
				writeRedirect(w, decision.Reason, decision.Redirect)
			default:
				writeError(w, http.StatusServiceUnavailable, "session_pending")
			}
		})
	}
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeRedirect(w http.ResponseWriter, reason, location string) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusFound, map[string]string{"error": reason, "redirect": location})
}
