package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusportal/internal/memstore"
	"campusportal/internal/model"
	"campusportal/internal/realtime"
)

type recordingNotifier struct {
	mu   sync.Mutex
	keys []string
	all  int
}

func (r *recordingNotifier) ProfileChanged(_ context.Context, authID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, authID)
	return nil
}

func (r *recordingNotifier) ProfilesChanged(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
	return nil
}

func (r *recordingNotifier) snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...), r.all
}

func TestProfileInvalidationJob(t *testing.T) {
	hub := realtime.NewHub()
	db := memstore.New(hub)
	linked := "auth-1"
	student, err := db.AddProfile(model.Profile{Role: model.RoleStudent, Email: "s@college.edu", AuthID: &linked})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv := &recordingNotifier{}
	require.NoError(t, StartProfileInvalidationJob(ctx, hub, db, inv, time.Second, nil))

	require.NoError(t, db.RecordAttendance(student.ID, model.Attendance{
		Subject: model.Subject{Name: "Physics"},
		Status:  model.AttendancePresent,
	}))
	assert.Eventually(t, func() bool {
		keys, _ := inv.snapshot()
		return len(keys) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, db.LinkAuthID(ctx, model.RoleStudent, student.ID, "auth-2"))
	_, err = db.AddProfile(model.Profile{Role: model.RoleFaculty, Email: "f@college.edu"})
	require.NoError(t, err)
	db.AddFeeStructure(model.FeeComponent{Name: "Tuition"}, "")

	assert.Eventually(t, func() bool {
		keys, all := inv.snapshot()
		return len(keys) == 2 && all == 1
	}, time.Second, 10*time.Millisecond)

	keys, _ := inv.snapshot()
	assert.Equal(t, []string{"auth-1", "auth-2"}, keys)
}

func TestInvalidateForUnlinkedStudent(t *testing.T) {
	db := memstore.New(nil)
	student, err := db.AddProfile(model.Profile{Role: model.RoleStudent, Email: "s@college.edu"})
	require.NoError(t, err)

	inv := &recordingNotifier{}
	event := realtime.Event{Table: "payments", Op: "INSERT", Record: map[string]interface{}{"student_id": student.ID}}
	require.NoError(t, invalidateFor(context.Background(), event, db, inv))
	keys, all := inv.snapshot()
	assert.Empty(t, keys)
	assert.Zero(t, all)
}

func TestResyncChangesEveryProfile(t *testing.T) {
	hub := realtime.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv := &recordingNotifier{}
	require.NoError(t, StartProfileInvalidationJob(ctx, hub, memstore.New(nil), inv, time.Second, nil))

	hub.Publish(realtime.Resync())
	assert.Eventually(t, func() bool {
		_, all := inv.snapshot()
		return all == 1
	}, time.Second, 10*time.Millisecond)
	keys, _ := inv.snapshot()
	assert.Empty(t, keys)
}
