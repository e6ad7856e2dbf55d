package views

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusportal/internal/attendance"
	"campusportal/internal/fees"
	"campusportal/internal/memstore"
	"campusportal/internal/model"
	"campusportal/internal/operations"
	"campusportal/internal/realtime"
)

func seedStudent(t *testing.T, db *memstore.DB) model.Profile {
	t.Helper()
	s, err := db.AddProfile(model.Profile{Role: model.RoleStudent, Email: "s@college.edu", Course: "BSc"})
	require.NoError(t, err)
	return s
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
	var zero T
	return zero
}

func TestLiveAttendanceRerunsOnChange(t *testing.T) {
	hub := realtime.NewHub()
	db := memstore.New(hub)
	student := seedStudent(t, db)
	other := seedStudent(t, db)
	svc := NewService(db, db, nil, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := svc.LiveAttendance(ctx, student.ID)
	require.NoError(t, err)

	first := next(t, updates)
	assert.Equal(t, 0, first.Total)
	assert.Equal(t, attendance.NoSubject, first.Best.Subject)

	require.NoError(t, db.RecordAttendance(other.ID, model.Attendance{Subject: model.Subject{Name: "Art"}, Status: model.AttendanceAbsent}))
	require.NoError(t, db.RecordAttendance(student.ID, model.Attendance{Subject: model.Subject{Name: "Physics"}, Status: model.AttendancePresent}))

	second := next(t, updates)
	assert.Equal(t, 1, second.Total)
	assert.Equal(t, 100, second.Percentage)
	assert.Equal(t, "Physics", second.Best.Subject)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLiveFeesRerunsOnPaymentAndStructure(t *testing.T) {
	hub := realtime.NewHub()
	db := memstore.New(hub)
	student := seedStudent(t, db)
	tuition := db.AddFeeStructure(model.FeeComponent{Name: "Tuition", TotalAmount: decimal.NewFromInt(1000)}, "BSc")
	svc := NewService(db, db, nil, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := svc.LiveFees(ctx, student.ID)
	require.NoError(t, err)

	first := next(t, updates)
	require.Len(t, first.Fees, 1)
	assert.Equal(t, fees.StatusUnpaid, first.Fees[0].Status)

	_, err = db.RecordPayment(student.ID, model.Payment{FeeComponentID: tuition.ID, Amount: decimal.NewFromInt(400), Status: model.PaymentPaid})
	require.NoError(t, err)
	second := next(t, updates)
	assert.Equal(t, fees.StatusPartial, second.Fees[0].Status)
	assert.True(t, second.PendingAmount.Equal(decimal.NewFromInt(600)))

	db.AddFeeStructure(model.FeeComponent{Name: "Bus Pass", TotalAmount: decimal.NewFromInt(200)}, "")
	third := next(t, updates)
	require.Len(t, third.Fees, 2)
	assert.Equal(t, "transport", third.Fees[1].Category)
}

type failingSource struct{}

func (failingSource) StudentAttendance(context.Context, string) ([]model.Attendance, error) {
	return nil, errors.New("connection refused")
}

func (failingSource) FeeComponents(context.Context, string) ([]model.FeeComponent, error) {
	return nil, errors.New("connection refused")
}

func (failingSource) StudentPayments(context.Context, string) ([]model.Payment, error) {
	return nil, nil
}

func TestBackendFailuresAreTransient(t *testing.T) {
	svc := NewService(failingSource{}, failingSource{}, nil, nil, nil)
	_, err := svc.Attendance(context.Background(), "s-1")
	assert.ErrorIs(t, err, operations.ErrTransientIO)
	_, err = svc.Fees(context.Background(), "s-1")
	assert.ErrorIs(t, err, operations.ErrTransientIO)
	_, err = svc.LiveAttendance(context.Background(), "s-1")
	assert.ErrorIs(t, err, operations.ErrTransientIO)
}

func TestFeesCountsSkippedRecords(t *testing.T) {
	db := memstore.New(nil)
	student := seedStudent(t, db)
	db.AddFeeStructure(model.FeeComponent{Name: "", TotalAmount: decimal.NewFromInt(10)}, "")
	_, err := db.RecordPayment(student.ID, model.Payment{FeeComponentID: "unknown", Amount: decimal.NewFromInt(5), Status: model.PaymentPaid})
	require.NoError(t, err)

	summary, err := NewService(db, db, nil, nil, nil).Fees(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedComponents)
	assert.Equal(t, 1, summary.SkippedPayments)
}
