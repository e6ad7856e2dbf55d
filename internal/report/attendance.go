// Package report renders aggregated statistics as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"campusportal/internal/attendance"
	"campusportal/internal/model"
)

const attendanceSheet = "Attendance"

var subjectHeader = []interface{}{"Subject", "Present", "Absent", "Late", "Total", "Percentage"}

// WriteAttendance writes a one-sheet workbook: a header block identifying the
// student, one row per subject, then the overall row.
func WriteAttendance(w io.Writer, student model.Profile, stats attendance.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), attendanceSheet); err != nil {
		return errors.Wrap(err, "name sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "create style")
	}

	name := strings.TrimSpace(student.FirstName + " " + student.LastName)
	rows := [][]interface{}{
		{"Student", name},
		{"Roll number", student.RollNumber},
		{"Course", student.Course},
		{},
		subjectHeader,
	}
	for _, s := range stats.Subjects {
		rows = append(rows, []interface{}{s.Subject, s.Present, s.Absent, s.Late, s.Total, percent(s.Percentage)})
	}
	overallRow := len(rows) + 1
	rows = append(rows,
		[]interface{}{"Overall", stats.Present, stats.Absent, stats.Late, stats.Total, percent(stats.Percentage)},
		[]interface{}{},
		[]interface{}{"Best subject", stats.Best.Subject, percent(stats.Best.Percentage)},
		[]interface{}{"Worst subject", stats.Worst.Subject, percent(stats.Worst.Percentage)},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(attendanceSheet, cell, &row); err != nil {
			return errors.Wrapf(err, "write row %d", i+1)
		}
	}
	for _, r := range []int{5, overallRow} {
		if err := f.SetRowStyle(attendanceSheet, r, r, bold); err != nil {
			return errors.Wrap(err, "style row")
		}
	}
	if err := f.SetColWidth(attendanceSheet, "A", "A", 24); err != nil {
		return errors.Wrap(err, "size column")
	}

	return errors.Wrap(f.Write(w), "write workbook")
}

func percent(p int) string {
	return fmt.Sprintf("%d%%", p)
}
