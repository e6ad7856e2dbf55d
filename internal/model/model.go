package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// ProfileRoles are the roles backed by a domain profile table.
var ProfileRoles = []Role{RoleStudent, RoleFaculty}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) HasProfile() bool {
	return r == RoleStudent || r == RoleFaculty
}

type Identity struct {
	AuthID string `json:"auth_id"`
	Email  string `json:"email"`
}

type Profile struct {
	ID          string       `json:"id" validate:"required,uuid"`
	Role        Role         `json:"role" validate:"required,oneof=student faculty"`
	AuthID      *string      `json:"auth_id,omitempty"`
	Email       string       `json:"email" validate:"required,email"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Phone       string       `json:"phone,omitempty"`
	Department  string       `json:"department,omitempty"`
	Course      string       `json:"course,omitempty"`
	RollNumber  string       `json:"roll_number,omitempty"`
	Designation string       `json:"designation,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Payments    []Payment    `json:"payments,omitempty"`
	Marks       []Mark       `json:"marks,omitempty"`
	Attendance  []Attendance `json:"attendance,omitempty"`
}

func (p Profile) LinkedTo(authID string) bool {
	return p.AuthID != nil && *p.AuthID == authID
}

type Subject struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

type Attendance struct {
	Subject Subject          `json:"subject"`
	Status  AttendanceStatus `json:"status"`
	Date    time.Time        `json:"date"`
}

type Mark struct {
	Subject  Subject         `json:"subject"`
	Exam     string          `json:"exam"`
	Score    decimal.Decimal `json:"score"`
	MaxScore decimal.Decimal `json:"max_score"`
}

type FeeComponent struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Category    string          `json:"category,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPaid, PaymentPending, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

type Payment struct {
	ID             string          `json:"id,omitempty"`
	FeeComponentID string          `json:"fee_component_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Status         PaymentStatus   `json:"status"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
}
