package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campusportal/internal/access"
	"campusportal/internal/auth"
	"campusportal/internal/model"
	"campusportal/internal/operations"
	"campusportal/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type staffView struct {
	Student studentSummary `json:"student"`
	Data    interface{}    `json:"data"`
}

type studentSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number,omitempty"`
	Course     string `json:"course,omitempty"`
}

// Profile

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	s.serveProfile(w, r, false)
}

func (s *Server) handleRefreshMe(w http.ResponseWriter, r *http.Request) {
	s.serveProfile(w, r, true)
}

func (s *Server) serveProfile(w http.ResponseWriter, r *http.Request, force bool) {
	p, ok := s.resolve(w, r, force)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if err := s.resolver.SignOut(r.Context(), session.AuthID); err != nil {
		s.logger.Warn("cache invalidation on sign-out failed", "auth_id", session.AuthID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Student

func (s *Server) handleStudentAttendance(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolve(w, r, false)
	if !ok {
		return
	}
	stats, err := s.views.Attendance(r.Context(), p.ID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStudentAttendanceReport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolve(w, r, false)
	if !ok {
		return
	}
	stats, err := s.views.Attendance(r.Context(), p.ID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteAttendance(&buf, p, stats); err != nil {
		s.logger.Error("attendance report failed", "profile_id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "report_failed")
		return
	}
	filename := "attendance.xlsx"
	if p.RollNumber != "" {
		filename = fmt.Sprintf("attendance-%s.xlsx", strings.ReplaceAll(p.RollNumber, "\"", ""))
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleStudentAttendanceLive streams recomputed statistics as server-sent
// events until the client goes away.
func (s *Server) handleStudentAttendanceLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}
	p, ok := s.resolve(w, r, false)
	if !ok {
		return
	}
	updates, err := s.views.LiveAttendance(r.Context(), p.ID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for stats := range updates {
		data, err := json.Marshal(stats)
		if err != nil {
			s.logger.Error("encode live attendance", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: attendance\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleStudentFees(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolve(w, r, false)
	if !ok {
		return
	}
	summary, err := s.views.Fees(r.Context(), p.ID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Staff

func (s *Server) handleFacultyStudentAttendance(w http.ResponseWriter, r *http.Request) {
	student, ok := s.loadStudent(w, r)
	if !ok {
		return
	}
	stats, err := s.views.Attendance(r.Context(), student.ID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staffView{Student: summarize(student), Data: stats})
}

func (s *Server) handleAdminStudentFees(w http.ResponseWriter, r *http.Request) {
	student, ok := s.loadStudent(w, r)
	if !ok {
		return
	}
	summary, err := s.views.Fees(r.Context(), student.ID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staffView{Student: summarize(student), Data: summary})
}

func (s *Server) loadStudent(w http.ResponseWriter, r *http.Request) (model.Profile, bool) {
	id := chi.URLParam(r, "studentId")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return model.Profile{}, false
	}
	student, err := s.directory.FindByID(r.Context(), model.RoleStudent, id)
	if err != nil {
		if errors.Is(err, operations.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return model.Profile{}, false
		}
		s.writeOperationError(w, r, operations.New(operations.CodeTransientIO, err))
		return model.Profile{}, false
	}
	return student, true
}

func summarize(p model.Profile) studentSummary {
	return studentSummary{
		ID:         p.ID,
		Name:       strings.TrimSpace(p.FirstName + " " + p.LastName),
		RollNumber: p.RollNumber,
		Course:     p.Course,
	}
}

// Errors

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, force bool) (model.Profile, bool) {
	p, err := s.resolver.Resolve(r.Context(), force)
	if err != nil {
		s.writeOperationError(w, r, err)
		return model.Profile{}, false
	}
	return p, true
}

// SetupPath is where a session without a profile completes registration.
func SetupPath(role model.Role) string {
	return "/" + string(role) + "/setup"
}

func (s *Server) writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	session := auth.SessionFromContext(r.Context())
	switch {
	case errors.Is(err, operations.ErrUnauthenticated):
		writeRedirect(w, "unauthenticated", access.LoginRedirect(requiredRoles(r.Context()), r.URL.RequestURI()))
	case errors.Is(err, operations.ErrNotFound):
		body := map[string]string{"error": "profile_not_found"}
		if session != nil && operations.SetupAllowed(session.Role, err) {
			body["redirect"] = SetupPath(session.Role)
		}
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, operations.ErrConflict):
		s.logger.Warn("ambiguous profile match", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusConflict, "profile_conflict")
	case errors.Is(err, operations.ErrStaleSession):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "stale_session", "retry": true})
	case errors.Is(err, operations.ErrTransientIO),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("backend unavailable", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "backend_unavailable", "retry": true})
	case errors.Is(err, context.Canceled):
		// Client went away.
	case errors.Is(err, operations.ErrValidation):
		s.logger.Error("invalid record from backend", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "invalid_record")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
