// Package aggregate computes grade and attendance aggregates from ledger
// entries. All functions are pure.
package aggregate

import (
	"math"

	"github.com/edukita/classtrack-api/internal/models"
)

// WeightedAverage computes the weighted mean of per-entry percentages.
// Weight is a relative-importance coefficient per grade entry, not a
// normalization of point totals: two entries with weight 1 contribute
// equally no matter their max values. An empty list or an all-zero weight
// sum yields 0.
func WeightedAverage(grades []models.Grade) float64 {
	if len(grades) == 0 {
		return 0
	}

	totalWeight := 0.0
	for _, g := range grades {
		totalWeight += g.Weight
	}
	if totalWeight == 0 {
		return 0
	}

	sum := 0.0
	for _, g := range grades {
		sum += g.Percentage() * g.Weight
	}
	return sum / totalWeight
}

// AttendanceRate returns the share of records with status "present", scaled
// to 0-100. Late and excused count against the rate exactly like absent.
// An empty list yields 0.
func AttendanceRate(records []models.Attendance) float64 {
	if len(records) == 0 {
		return 0
	}

	present := 0
	for _, r := range records {
		if r.Status == models.AttendanceStatusPresent {
			present++
		}
	}
	return float64(present) / float64(len(records)) * 100
}

// CountByStatus tallies records per attendance status.
func CountByStatus(records []models.Attendance) models.AttendanceCounts {
	counts := models.AttendanceCounts{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case models.AttendanceStatusPresent:
			counts.Present++
		case models.AttendanceStatusAbsent:
			counts.Absent++
		case models.AttendanceStatusLate:
			counts.Late++
		case models.AttendanceStatusExcused:
			counts.Excused++
		}
	}
	return counts
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
