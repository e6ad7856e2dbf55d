// Package attendance computes per-subject and overall attendance statistics
// from raw attendance records.
package attendance

import (
	"strings"

	"campusportal/internal/model"
)

// NoSubject names the best/worst subject when nothing can be ranked.
const NoSubject = "N/A"

type SubjectStat struct {
	Subject    string `json:"subject"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Late       int    `json:"late"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

type Highlight struct {
	Subject    string `json:"subject"`
	Percentage int    `json:"percentage"`
}

type Stats struct {
	Subjects   []SubjectStat `json:"subjects"`
	Present    int           `json:"present"`
	Absent     int           `json:"absent"`
	Late       int           `json:"late"`
	Total      int           `json:"total"`
	Percentage int           `json:"percentage"`
	Best       Highlight     `json:"best"`
	Worst      Highlight     `json:"worst"`
	// Skipped counts records with an unknown status or no subject name.
	Skipped int `json:"skipped"`
}

// Aggregate groups records by subject display name, in first-seen order.
// Records without a status are ignored rather than counted as absences.
// Late attendance counts as half present.
func Aggregate(records []model.Attendance) Stats {
	stats := Stats{
		Subjects: []SubjectStat{},
		Best:     Highlight{Subject: NoSubject},
		Worst:    Highlight{Subject: NoSubject},
	}
	index := make(map[string]int)

	for _, rec := range records {
		name := rec.Subject.Name
		if strings.TrimSpace(name) == "" {
			stats.Skipped++
			continue
		}
		switch rec.Status {
		case "", model.AttendancePresent, model.AttendanceAbsent, model.AttendanceLate:
		default:
			stats.Skipped++
			continue
		}

		i, ok := index[name]
		if !ok {
			i = len(stats.Subjects)
			index[name] = i
			stats.Subjects = append(stats.Subjects, SubjectStat{Subject: name})
		}
		s := &stats.Subjects[i]
		switch rec.Status {
		case model.AttendancePresent:
			s.Present++
			stats.Present++
		case model.AttendanceAbsent:
			s.Absent++
			stats.Absent++
		case model.AttendanceLate:
			s.Late++
			stats.Late++
		default:
			continue
		}
		s.Total++
		stats.Total++
	}

	stats.Percentage = Percentage(stats.Present, stats.Late, stats.Total)
	ranked := false
	for i := range stats.Subjects {
		s := &stats.Subjects[i]
		if s.Total == 0 {
			continue
		}
		s.Percentage = Percentage(s.Present, s.Late, s.Total)
		if !ranked {
			stats.Best = Highlight{Subject: s.Subject, Percentage: s.Percentage}
			stats.Worst = stats.Best
			ranked = true
			continue
		}
		if s.Percentage > stats.Best.Percentage {
			stats.Best = Highlight{Subject: s.Subject, Percentage: s.Percentage}
		}
		if s.Percentage < stats.Worst.Percentage {
			stats.Worst = Highlight{Subject: s.Subject, Percentage: s.Percentage}
		}
	}
	return stats
}

// Percentage returns round((present + late/2) / total * 100), rounding halves
// up. It is 0 when total is 0.
func Percentage(present, late, total int) int {
	if total <= 0 {
		return 0
	}
	num := (2*present + late) * 100
	den := 2 * total
	return (2*num + den) / (2 * den)
}
