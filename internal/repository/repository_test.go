package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusportal/internal/db"
	"campusportal/internal/model"
	"campusportal/internal/operations"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("CAMPUSPORTAL_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("CAMPUSPORTAL_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	if err := db.NewStore(pool).Migrate(context.Background(), "table_changes"); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestProfileLookups(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	store := NewStore(pool)

	email := "repo-" + uuid.NewString()[:8] + "@college.edu"
	older := uuid.NewString()
	newer := uuid.NewString()
	_, err := pool.Exec(ctx, `
    INSERT INTO students (id, email, first_name, course, created_at)
    VALUES ($1, $2, 'Old', 'BSc', $3), ($4, upper($2), 'New', 'BSc', $5)
  `, older, email, time.Now().Add(-time.Hour), newer, time.Now())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	matches, err := store.FindByEmail(ctx, model.RoleStudent, email)
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != newer {
		t.Fatalf("expected newest first, got %+v", matches)
	}

	authID := "auth-" + uuid.NewString()
	if _, err := store.FindByAuthID(ctx, model.RoleStudent, authID); !operations.SetupAllowed(model.RoleStudent, err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.LinkAuthID(ctx, model.RoleStudent, newer, authID); err != nil {
		t.Fatalf("LinkAuthID: %v", err)
	}
	linked, err := store.FindByAuthID(ctx, model.RoleStudent, authID)
	if err != nil {
		t.Fatalf("FindByAuthID: %v", err)
	}
	if linked.ID != newer || !linked.LinkedTo(authID) {
		t.Fatalf("unexpected profile %+v", linked)
	}

	if err := store.LinkAuthID(ctx, model.RoleFaculty, uuid.NewString(), authID); err == nil {
		t.Fatalf("expected error linking missing faculty")
	}
}

func TestStudentFeesAndAttendance(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	store := NewStore(pool)

	studentID := uuid.NewString()
	subjectID := uuid.NewString()
	feeID := uuid.NewString()
	course := "course-" + uuid.NewString()[:8]
	seed := []struct {
		sql  string
		args []interface{}
	}{
		{`INSERT INTO students (id, email, course) VALUES ($1, $2, $3)`, []interface{}{studentID, studentID + "@college.edu", course}},
		{`INSERT INTO subjects (id, name, code) VALUES ($1, 'Physics', 'PH101')`, []interface{}{subjectID}},
		{`INSERT INTO attendance (student_id, subject_id, status, date) VALUES ($1, $2, 'present', '2024-03-01'), ($1, $2, NULL, '2024-03-02')`, []interface{}{studentID, subjectID}},
		{`INSERT INTO fee_structures (id, name, course, total_amount) VALUES ($1, 'Tuition', $2, 1000.50)`, []interface{}{feeID, course}},
		{`INSERT INTO payments (student_id, fee_component_id, amount, status) VALUES ($1, $2, 250.25, 'paid')`, []interface{}{studentID, feeID}},
	}
	for _, s := range seed {
		if _, err := pool.Exec(ctx, s.sql, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.sql, err)
		}
	}

	records, err := store.StudentAttendance(ctx, studentID)
	if err != nil {
		t.Fatalf("StudentAttendance: %v", err)
	}
	if len(records) != 2 || records[0].Status != model.AttendancePresent || records[1].Status != "" {
		t.Fatalf("unexpected attendance %+v", records)
	}

	components, err := store.FeeComponents(ctx, studentID)
	if err != nil {
		t.Fatalf("FeeComponents: %v", err)
	}
	found := false
	for _, c := range components {
		if c.ID == feeID {
			found = c.TotalAmount.String() == "1000.5"
		}
	}
	if !found {
		t.Fatalf("course fee missing or wrong: %+v", components)
	}

	payments, err := store.StudentPayments(ctx, studentID)
	if err != nil {
		t.Fatalf("StudentPayments: %v", err)
	}
	if len(payments) != 1 || payments[0].Amount.String() != "250.25" {
		t.Fatalf("unexpected payments %+v", payments)
	}

	profile, err := store.FindByID(ctx, model.RoleStudent, studentID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(profile.Attendance) != 2 || len(profile.Payments) != 1 {
		t.Fatalf("related records not loaded: %+v", profile)
	}
}
