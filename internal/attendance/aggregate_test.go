package attendance

import (
	"reflect"
	"testing"
	"time"

	"campusportal/internal/model"
)

func rec(subject string, status model.AttendanceStatus) model.Attendance {
	return model.Attendance{
		Subject: model.Subject{Name: subject},
		Status:  status,
		Date:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		present, late, total int
		want                 int
	}{
		{0, 0, 0, 0},
		{1, 0, 1, 100},
		{0, 1, 1, 50},
		{1, 1, 3, 50},
		{2, 0, 3, 67},
		{1, 0, 3, 33},
		{0, 1, 4, 13},
		{1, 0, 8, 13},
		{0, 1, 8, 6},
		{5, 0, 8, 63},
	}
	for _, tt := range tests {
		if got := Percentage(tt.present, tt.late, tt.total); got != tt.want {
			t.Fatalf("Percentage(%d, %d, %d) = %d, want %d", tt.present, tt.late, tt.total, got, tt.want)
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil)
	if stats.Total != 0 || stats.Percentage != 0 {
		t.Fatalf("expected zero totals, got %+v", stats)
	}
	if stats.Best != (Highlight{Subject: NoSubject}) || stats.Worst != (Highlight{Subject: NoSubject}) {
		t.Fatalf("expected N/A highlights, got best=%+v worst=%+v", stats.Best, stats.Worst)
	}
	if len(stats.Subjects) != 0 {
		t.Fatalf("expected no subjects, got %d", len(stats.Subjects))
	}
}

func TestAggregateSubjectsAndOverall(t *testing.T) {
	records := []model.Attendance{
		rec("Physics", model.AttendancePresent),
		rec("Mathematics", model.AttendanceAbsent),
		rec("Physics", model.AttendanceLate),
		rec("Mathematics", model.AttendancePresent),
		rec("Physics", model.AttendanceAbsent),
		rec("Chemistry", ""),
		rec("Mathematics", model.AttendancePresent),
	}
	stats := Aggregate(records)

	want := []SubjectStat{
		{Subject: "Physics", Present: 1, Absent: 1, Late: 1, Total: 3, Percentage: 50},
		{Subject: "Mathematics", Present: 2, Absent: 1, Total: 3, Percentage: 67},
		{Subject: "Chemistry"},
	}
	if !reflect.DeepEqual(stats.Subjects, want) {
		t.Fatalf("subjects = %+v, want %+v", stats.Subjects, want)
	}
	if stats.Total != 6 || stats.Present != 3 || stats.Late != 1 || stats.Absent != 2 {
		t.Fatalf("unexpected overall counts %+v", stats)
	}
	if stats.Percentage != 58 {
		t.Fatalf("overall percentage = %d, want 58", stats.Percentage)
	}
	if stats.Best != (Highlight{"Mathematics", 67}) {
		t.Fatalf("best = %+v", stats.Best)
	}
	if stats.Worst != (Highlight{"Physics", 50}) {
		t.Fatalf("worst = %+v", stats.Worst)
	}
}

func TestAggregateTiesKeepFirstSeen(t *testing.T) {
	records := []model.Attendance{
		rec("Biology", model.AttendancePresent),
		rec("Art", model.AttendancePresent),
		rec("Zoology", model.AttendanceAbsent),
		rec("History", model.AttendanceAbsent),
	}
	stats := Aggregate(records)
	if stats.Best.Subject != "Biology" {
		t.Fatalf("best = %q, want Biology", stats.Best.Subject)
	}
	if stats.Worst.Subject != "Zoology" {
		t.Fatalf("worst = %q, want Zoology", stats.Worst.Subject)
	}
}

func TestAggregateMergesSubjectsByName(t *testing.T) {
	a := rec("Mathematics", model.AttendancePresent)
	a.Subject.Code = "MA101"
	b := rec("Mathematics", model.AttendanceAbsent)
	b.Subject.Code = "MA201"
	stats := Aggregate([]model.Attendance{a, b})
	if len(stats.Subjects) != 1 || stats.Subjects[0].Total != 2 {
		t.Fatalf("expected one merged subject, got %+v", stats.Subjects)
	}
}

func TestAggregateSkipsInvalidRecords(t *testing.T) {
	stats := Aggregate([]model.Attendance{
		rec("", model.AttendancePresent),
		rec("Physics", "excused"),
		rec("Physics", model.AttendancePresent),
	})
	if stats.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", stats.Skipped)
	}
	if stats.Total != 1 || stats.Percentage != 100 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	records := []model.Attendance{
		rec("Physics", model.AttendanceLate),
		rec("Chemistry", model.AttendancePresent),
		rec("Physics", model.AttendancePresent),
		rec("Chemistry", model.AttendanceAbsent),
	}
	first := Aggregate(records)
	for i := 0; i < 10; i++ {
		if got := Aggregate(records); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
