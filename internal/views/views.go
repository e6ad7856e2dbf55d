// Package views runs the fetch-and-aggregate pipelines behind the student
// attendance and fee pages, once or continuously on change notifications.
package views

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"campusportal/internal/attendance"
	"campusportal/internal/fees"
	"campusportal/internal/metrics"
	"campusportal/internal/model"
	"campusportal/internal/operations"
	"campusportal/internal/realtime"
)

type AttendanceSource interface {
	StudentAttendance(ctx context.Context, studentID string) ([]model.Attendance, error)
}

type FeeSource interface {
	FeeComponents(ctx context.Context, studentID string) ([]model.FeeComponent, error)
	StudentPayments(ctx context.Context, studentID string) ([]model.Payment, error)
}

type Service struct {
	attendance AttendanceSource
	fees       FeeSource
	classifier *fees.Classifier
	changes    realtime.Source
	logger     *slog.Logger
}

// NewService wires the pipelines. changes may be nil, in which case live
// views only ever emit their first result.
func NewService(att AttendanceSource, fs FeeSource, classifier *fees.Classifier, changes realtime.Source, logger *slog.Logger) *Service {
	if classifier == nil {
		classifier = fees.DefaultClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{attendance: att, fees: fs, classifier: classifier, changes: changes, logger: logger}
}

func (s *Service) Attendance(ctx context.Context, studentID string) (attendance.Stats, error) {
	records, err := s.attendance.StudentAttendance(ctx, studentID)
	if err != nil {
		return attendance.Stats{}, backendError(err, "load attendance")
	}
	stats := attendance.Aggregate(records)
	if stats.Skipped > 0 {
		metrics.SkippedRecords.WithLabelValues("attendance").Add(float64(stats.Skipped))
		s.logger.Warn("skipped invalid attendance records", "student_id", studentID, "count", stats.Skipped)
	}
	return stats, nil
}

func (s *Service) Fees(ctx context.Context, studentID string) (fees.Summary, error) {
	components, err := s.fees.FeeComponents(ctx, studentID)
	if err != nil {
		return fees.Summary{}, backendError(err, "load fee structures")
	}
	payments, err := s.fees.StudentPayments(ctx, studentID)
	if err != nil {
		return fees.Summary{}, backendError(err, "load payments")
	}
	summary := s.classifier.Reconcile(components, payments)
	if skipped := summary.SkippedComponents + summary.SkippedPayments; skipped > 0 {
		metrics.SkippedRecords.WithLabelValues("fees").Add(float64(skipped))
		s.logger.Warn("skipped invalid fee records",
			"student_id", studentID,
			"components", summary.SkippedComponents,
			"payments", summary.SkippedPayments,
		)
	}
	return summary, nil
}

// LiveAttendance emits the student's statistics now and again after every
// attendance change for that student. The channel closes when ctx ends.
func (s *Service) LiveAttendance(ctx context.Context, studentID string) (<-chan attendance.Stats, error) {
	first, err := s.Attendance(ctx, studentID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subscribe(ctx, subscription{"attendance", realtime.Eq("student_id", studentID)})
	if err != nil {
		return nil, err
	}
	return live(ctx, s.logger, first, subs, func(ctx context.Context) (attendance.Stats, error) {
		return s.Attendance(ctx, studentID)
	}), nil
}

// LiveFees re-reconciles after payment changes for the student and after any
// fee structure change.
func (s *Service) LiveFees(ctx context.Context, studentID string) (<-chan fees.Summary, error) {
	first, err := s.Fees(ctx, studentID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subscribe(ctx,
		subscription{"payments", realtime.Eq("student_id", studentID)},
		subscription{"fee_structures", realtime.Filter{}},
	)
	if err != nil {
		return nil, err
	}
	return live(ctx, s.logger, first, subs, func(ctx context.Context) (fees.Summary, error) {
		return s.Fees(ctx, studentID)
	}), nil
}

type subscription struct {
	table  string
	filter realtime.Filter
}

func (s *Service) subscribe(ctx context.Context, wanted ...subscription) ([]*realtime.Subscription, error) {
	if s.changes == nil {
		return nil, nil
	}
	subs := make([]*realtime.Subscription, 0, len(wanted))
	for _, w := range wanted {
		sub, err := s.changes.Subscribe(ctx, w.table, w.filter)
		if err != nil {
			for _, open := range subs {
				open.Close()
			}
			return nil, errors.Wrapf(err, "subscribe to %s", w.table)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func backendError(err error, msg string) error {
	if operations.Code(err) != "" {
		return err
	}
	return operations.New(operations.CodeTransientIO, errors.Wrap(err, msg))
}
