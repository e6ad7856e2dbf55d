// Package memstore is an in-memory portal backend. It serves local
// development and tests, and announces writes on a realtime hub the way the
// Postgres triggers do.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"campusportal/internal/model"
	"campusportal/internal/operations"
	"campusportal/internal/realtime"
)

type feeStructure struct {
	component model.FeeComponent
	course    string
	created   time.Time
}

type DB struct {
	mutex      sync.RWMutex
	profiles   map[model.Role]map[string]*model.Profile
	attendance map[string][]model.Attendance
	marks      map[string][]model.Mark
	fees       []feeStructure
	payments   map[string][]model.Payment

	hub *realtime.Hub
	now func() time.Time
}

// New returns an empty store. hub may be nil.
func New(hub *realtime.Hub) *DB {
	return &DB{
		profiles: map[model.Role]map[string]*model.Profile{
			model.RoleStudent: {},
			model.RoleFaculty: {},
		},
		attendance: make(map[string][]model.Attendance),
		marks:      make(map[string][]model.Mark),
		payments:   make(map[string][]model.Payment),
		hub:        hub,
		now:        time.Now,
	}
}

func tableFor(role model.Role) string {
	if role == model.RoleFaculty {
		return "faculty"
	}
	return "students"
}

func (db *DB) publish(table, op string, record map[string]interface{}) {
	if db.hub != nil {
		db.hub.Publish(realtime.Event{Table: table, Op: op, Record: record})
	}
}

func profileRecord(p model.Profile) map[string]interface{} {
	record := map[string]interface{}{"id": p.ID, "email": p.Email}
	if p.AuthID != nil {
		record["auth_id"] = *p.AuthID
	}
	return record
}

// AddProfile stores p, assigning an ID and timestamps when missing.
func (db *DB) AddProfile(p model.Profile) (model.Profile, error) {
	if !p.Role.HasProfile() {
		return model.Profile{}, operations.New(operations.CodeValidation, errors.Errorf("role %q has no profile table", p.Role))
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = db.now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	p.Attendance, p.Marks, p.Payments = nil, nil, nil

	db.mutex.Lock()
	stored := p
	db.profiles[p.Role][p.ID] = &stored
	db.mutex.Unlock()

	db.publish(tableFor(p.Role), "INSERT", profileRecord(p))
	return p, nil
}

func (db *DB) FindByAuthID(_ context.Context, role model.Role, authID string) (model.Profile, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	for _, p := range db.profiles[role] {
		if p.LinkedTo(authID) {
			return db.withRelated(*p), nil
		}
	}
	return model.Profile{}, operations.New(operations.CodeNotFound, errors.Errorf("no %s linked to %s", role, authID))
}

func (db *DB) FindByID(_ context.Context, role model.Role, id string) (model.Profile, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	if p, ok := db.profiles[role][id]; ok {
		return db.withRelated(*p), nil
	}
	return model.Profile{}, operations.New(operations.CodeNotFound, errors.Errorf("%s %s not found", role, id))
}

func (db *DB) FindByEmail(_ context.Context, role model.Role, email string) ([]model.Profile, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	var matches []model.Profile
	for _, p := range db.profiles[role] {
		if strings.EqualFold(p.Email, email) {
			matches = append(matches, db.withRelated(*p))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

func (db *DB) LinkAuthID(_ context.Context, role model.Role, profileID, authID string) error {
	db.mutex.Lock()
	p, ok := db.profiles[role][profileID]
	if !ok {
		db.mutex.Unlock()
		return operations.New(operations.CodeNotFound, errors.Errorf("%s %s not found", role, profileID))
	}
	linked := authID
	p.AuthID = &linked
	p.UpdatedAt = db.now().UTC()
	record := profileRecord(*p)
	db.mutex.Unlock()

	db.publish(tableFor(role), "UPDATE", record)
	return nil
}

func (db *DB) RecordAttendance(studentID string, rec model.Attendance) error {
	db.mutex.Lock()
	if _, ok := db.profiles[model.RoleStudent][studentID]; !ok {
		db.mutex.Unlock()
		return operations.New(operations.CodeNotFound, errors.Errorf("student %s not found", studentID))
	}
	db.attendance[studentID] = append(db.attendance[studentID], rec)
	db.mutex.Unlock()

	db.publish("attendance", "INSERT", map[string]interface{}{
		"student_id": studentID,
		"status":     string(rec.Status),
	})
	return nil
}

func (db *DB) AddMark(studentID string, mark model.Mark) error {
	db.mutex.Lock()
	if _, ok := db.profiles[model.RoleStudent][studentID]; !ok {
		db.mutex.Unlock()
		return operations.New(operations.CodeNotFound, errors.Errorf("student %s not found", studentID))
	}
	db.marks[studentID] = append(db.marks[studentID], mark)
	db.mutex.Unlock()

	db.publish("marks", "INSERT", map[string]interface{}{"student_id": studentID})
	return nil
}

// AddFeeStructure registers a fee component for one course, or for every
// course when course is empty.
func (db *DB) AddFeeStructure(comp model.FeeComponent, course string) model.FeeComponent {
	if comp.ID == "" {
		comp.ID = uuid.NewString()
	}
	db.mutex.Lock()
	db.fees = append(db.fees, feeStructure{component: comp, course: course, created: db.now()})
	db.mutex.Unlock()

	db.publish("fee_structures", "INSERT", map[string]interface{}{"id": comp.ID})
	return comp
}

func (db *DB) RecordPayment(studentID string, p model.Payment) (model.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	db.mutex.Lock()
	if _, ok := db.profiles[model.RoleStudent][studentID]; !ok {
		db.mutex.Unlock()
		return model.Payment{}, operations.New(operations.CodeNotFound, errors.Errorf("student %s not found", studentID))
	}
	db.payments[studentID] = append(db.payments[studentID], p)
	db.mutex.Unlock()

	db.publish("payments", "INSERT", map[string]interface{}{
		"id":               p.ID,
		"student_id":       studentID,
		"fee_component_id": p.FeeComponentID,
		"status":           string(p.Status),
	})
	return p, nil
}

func (db *DB) StudentAttendance(_ context.Context, studentID string) ([]model.Attendance, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return append([]model.Attendance{}, db.attendance[studentID]...), nil
}

func (db *DB) StudentMarks(_ context.Context, studentID string) ([]model.Mark, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return append([]model.Mark{}, db.marks[studentID]...), nil
}

func (db *DB) FeeComponents(_ context.Context, studentID string) ([]model.FeeComponent, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	course := ""
	if p, ok := db.profiles[model.RoleStudent][studentID]; ok {
		course = p.Course
	}
	components := []model.FeeComponent{}
	for _, f := range db.fees {
		if f.course == "" || f.course == course {
			components = append(components, f.component)
		}
	}
	return components, nil
}

func (db *DB) StudentPayments(_ context.Context, studentID string) ([]model.Payment, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return append([]model.Payment{}, db.payments[studentID]...), nil
}

// withRelated must be called with the read lock held.
func (db *DB) withRelated(p model.Profile) model.Profile {
	if p.AuthID != nil {
		linked := *p.AuthID
		p.AuthID = &linked
	}
	if p.Role == model.RoleStudent {
		p.Attendance = append([]model.Attendance(nil), db.attendance[p.ID]...)
		p.Marks = append([]model.Mark(nil), db.marks[p.ID]...)
		p.Payments = append([]model.Payment(nil), db.payments[p.ID]...)
	}
	return p
}
