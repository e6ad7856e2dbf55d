package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusportal/internal/access"
	"campusportal/internal/auth"
	"campusportal/internal/model"
	"campusportal/internal/profile"
	"campusportal/internal/views"
)

// Directory looks up profiles by primary key for staff views.
type Directory interface {
	FindByID(ctx context.Context, role model.Role, id string) (model.Profile, error)
}

type Server struct {
	verifier  *auth.Verifier
	resolver  *profile.Resolver
	views     *views.Service
	directory Directory
	policy    *access.Policy
	logger    *slog.Logger
	timeout   time.Duration
}

type Option func(*Server)

// WithPolicy replaces the default policy, which has no grants beyond the
// administrator rule.
func WithPolicy(p *access.Policy) Option {
	return func(s *Server) { s.policy = p }
}

// WithRequestTimeout bounds non-streaming handlers.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func NewServer(verifier *auth.Verifier, resolver *profile.Resolver, viewService *views.Service, directory Directory, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		verifier:  verifier,
		resolver:  resolver,
		views:     viewService,
		directory: directory,
		policy:    access.NewPolicy(nil),
		logger:    logger,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	anyProfile := access.Roles(model.RoleStudent, model.RoleFaculty)
	student := access.Roles(model.RoleStudent)
	faculty := access.Roles(model.RoleFaculty)
	admin := access.Roles(model.RoleAdmin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireRoles(anyProfile), s.timeoutMiddleware).Get("/me", s.handleGetMe)
		r.With(s.requireRoles(anyProfile), s.timeoutMiddleware).Post("/me/refresh", s.handleRefreshMe)
		r.With(s.requireRoles(nil), s.timeoutMiddleware).Post("/auth/logout", s.handleLogout)

		r.With(s.requireRoles(student), s.timeoutMiddleware).Get("/student/attendance", s.handleStudentAttendance)
		r.With(s.requireRoles(student), s.timeoutMiddleware).Get("/student/attendance/report.xlsx", s.handleStudentAttendanceReport)
		r.With(s.requireRoles(student)).Get("/student/attendance/live", s.handleStudentAttendanceLive)
		r.With(s.requireRoles(student), s.timeoutMiddleware).Get("/student/fees", s.handleStudentFees)

		r.With(s.requireRoles(faculty), s.timeoutMiddleware).Get("/faculty/students/{studentId}/attendance", s.handleFacultyStudentAttendance)
		r.With(s.requireRoles(admin), s.timeoutMiddleware).Get("/admin/students/{studentId}/fees", s.handleAdminStudentFees)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
