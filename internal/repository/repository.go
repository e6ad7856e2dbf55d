package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"campusportal/internal/model"
	"campusportal/internal/operations"
)

const (
	studentColumns = `id::text, auth_id, email, first_name, last_name, phone, department,
    course, roll_number, '' AS designation, created_at, updated_at
    FROM students`
	facultyColumns = `id::text, auth_id, email, first_name, last_name, phone, department,
    '' AS course, '' AS roll_number, designation, created_at, updated_at
    FROM faculty`
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func profileSelect(role model.Role) (string, string, error) {
	switch role {
	case model.RoleStudent:
		return "SELECT " + studentColumns, "students", nil
	case model.RoleFaculty:
		return "SELECT " + facultyColumns, "faculty", nil
	default:
		return "", "", operations.New(operations.CodeNotFound, errors.Errorf("role %q has no profile table", role))
	}
}

func (s *Store) FindByAuthID(ctx context.Context, role model.Role, authID string) (model.Profile, error) {
	query, _, err := profileSelect(role)
	if err != nil {
		return model.Profile{}, err
	}
	row := s.pool.QueryRow(ctx, query+` WHERE auth_id = $1`, authID)
	profile, err := scanProfile(row, role)
	if err != nil {
		return model.Profile{}, notFound(err, "find %s by auth_id", role)
	}
	return profile, s.loadRelated(ctx, &profile)
}

func (s *Store) FindByID(ctx context.Context, role model.Role, id string) (model.Profile, error) {
	query, _, err := profileSelect(role)
	if err != nil {
		return model.Profile{}, err
	}
	row := s.pool.QueryRow(ctx, query+` WHERE id::text = $1`, id)
	profile, err := scanProfile(row, role)
	if err != nil {
		return model.Profile{}, notFound(err, "find %s %s", role, id)
	}
	return profile, s.loadRelated(ctx, &profile)
}

func (s *Store) FindByEmail(ctx context.Context, role model.Role, email string) ([]model.Profile, error) {
	query, _, err := profileSelect(role)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query+`
    WHERE lower(email) = lower($1)
    ORDER BY created_at DESC, id`, email)
	if err != nil {
		return nil, errors.Wrapf(err, "find %s by email", role)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		profile, err := scanProfile(rows, role)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", role)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "find %s by email", role)
	}
	for i := range profiles {
		if err := s.loadRelated(ctx, &profiles[i]); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

func (s *Store) LinkAuthID(ctx context.Context, role model.Role, profileID, authID string) error {
	_, table, err := profileSelect(role)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE `+table+`
    SET auth_id = $1, updated_at = now()
    WHERE id::text = $2`, authID, profileID)
	if err != nil {
		return errors.Wrapf(err, "link %s %s", role, profileID)
	}
	if tag.RowsAffected() == 0 {
		return operations.New(operations.CodeNotFound, errors.Errorf("%s %s not found", role, profileID))
	}
	return nil
}

func (s *Store) StudentAttendance(ctx context.Context, studentID string) ([]model.Attendance, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT s.name, s.code, COALESCE(a.status, ''), a.date
    FROM attendance a
    JOIN subjects s ON s.id = a.subject_id
    WHERE a.student_id::text = $1
    ORDER BY a.date, a.created_at
  `, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "list attendance")
	}
	defer rows.Close()

	records := []model.Attendance{}
	for rows.Next() {
		var rec model.Attendance
		var status string
		if err := rows.Scan(&rec.Subject.Name, &rec.Subject.Code, &status, &rec.Date); err != nil {
			return nil, errors.Wrap(err, "scan attendance")
		}
		rec.Status = model.AttendanceStatus(status)
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "list attendance")
}

func (s *Store) StudentMarks(ctx context.Context, studentID string) ([]model.Mark, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT s.name, s.code, m.exam, m.score::text, m.max_score::text
    FROM marks m
    JOIN subjects s ON s.id = m.subject_id
    WHERE m.student_id::text = $1
    ORDER BY m.created_at
  `, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "list marks")
	}
	defer rows.Close()

	marks := []model.Mark{}
	for rows.Next() {
		var mark model.Mark
		var score, maxScore string
		if err := rows.Scan(&mark.Subject.Name, &mark.Subject.Code, &mark.Exam, &score, &maxScore); err != nil {
			return nil, errors.Wrap(err, "scan mark")
		}
		if mark.Score, err = decimal.NewFromString(score); err != nil {
			return nil, errors.Wrap(err, "parse score")
		}
		if mark.MaxScore, err = decimal.NewFromString(maxScore); err != nil {
			return nil, errors.Wrap(err, "parse max score")
		}
		marks = append(marks, mark)
	}
	return marks, errors.Wrap(rows.Err(), "list marks")
}

// FeeComponents lists the fee structures that apply to the student's course,
// including those that apply to every course.
func (s *Store) FeeComponents(ctx context.Context, studentID string) ([]model.FeeComponent, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT f.id::text, f.name, COALESCE(f.category, ''), f.total_amount::text
    FROM fee_structures f
    WHERE f.course IS NULL
       OR f.course = (SELECT course FROM students WHERE id::text = $1)
    ORDER BY f.created_at, f.name
  `, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "list fee structures")
	}
	defer rows.Close()

	components := []model.FeeComponent{}
	for rows.Next() {
		var comp model.FeeComponent
		var total string
		if err := rows.Scan(&comp.ID, &comp.Name, &comp.Category, &total); err != nil {
			return nil, errors.Wrap(err, "scan fee structure")
		}
		if comp.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, errors.Wrap(err, "parse fee total")
		}
		components = append(components, comp)
	}
	return components, errors.Wrap(rows.Err(), "list fee structures")
}

func (s *Store) StudentPayments(ctx context.Context, studentID string) ([]model.Payment, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT id::text, fee_component_id::text, amount::text, status, paid_at
    FROM payments
    WHERE student_id::text = $1
    ORDER BY created_at
  `, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		var p model.Payment
		var amount, status string
		if err := rows.Scan(&p.ID, &p.FeeComponentID, &amount, &status, &p.PaidAt); err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse payment amount")
		}
		p.Status = model.PaymentStatus(status)
		payments = append(payments, p)
	}
	return payments, errors.Wrap(rows.Err(), "list payments")
}

func (s *Store) loadRelated(ctx context.Context, profile *model.Profile) error {
	if profile.Role != model.RoleStudent {
		return nil
	}
	var err error
	if profile.Attendance, err = s.StudentAttendance(ctx, profile.ID); err != nil {
		return err
	}
	if profile.Marks, err = s.StudentMarks(ctx, profile.ID); err != nil {
		return err
	}
	profile.Payments, err = s.StudentPayments(ctx, profile.ID)
	return err
}

func scanProfile(row pgx.Row, role model.Role) (model.Profile, error) {
	profile := model.Profile{Role: role}
	err := row.Scan(
		&profile.ID,
		&profile.AuthID,
		&profile.Email,
		&profile.FirstName,
		&profile.LastName,
		&profile.Phone,
		&profile.Department,
		&profile.Course,
		&profile.RollNumber,
		&profile.Designation,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	return profile, err
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return operations.New(operations.CodeNotFound, errors.Wrapf(err, format, args...))
	}
	return errors.Wrapf(err, format, args...)
}
