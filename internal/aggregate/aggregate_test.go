package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edukita/classtrack-api/internal/models"
)

func grade(value, max, weight float64) models.Grade {
	return models.Grade{GradeValue: value, MaxValue: max, Weight: weight}
}

func TestWeightedAverage(t *testing.T) {
	// 80/100 → 80%, 45/50 → 90%, equal weights → 85.0
	grades := []models.Grade{grade(80, 100, 1), grade(45, 50, 1)}
	assert.InDelta(t, 85.0, WeightedAverage(grades), 1e-9)
}

func TestWeightedAverageIsNotPooledPoints(t *testing.T) {
	// pooled points would give (80+45)/(100+50) = 83.33; the weighted mean
	// of per-entry percentages must win
	grades := []models.Grade{grade(80, 100, 0.5), grade(45, 50, 0.5)}
	assert.InDelta(t, 85.0, WeightedAverage(grades), 1e-9)
}

func TestWeightedAverageEmpty(t *testing.T) {
	assert.Zero(t, WeightedAverage(nil))
	assert.Zero(t, WeightedAverage([]models.Grade{}))
}

func TestWeightedAverageZeroWeights(t *testing.T) {
	grades := []models.Grade{grade(80, 100, 0), grade(45, 50, 0)}
	assert.Zero(t, WeightedAverage(grades))
}

func TestWeightedAverageSkewedWeights(t *testing.T) {
	// 100% at weight 1 and 50% at weight 3 → (100 + 150) / 4 = 62.5
	grades := []models.Grade{grade(10, 10, 1), grade(5, 10, 3)}
	assert.InDelta(t, 62.5, WeightedAverage(grades), 1e-9)
}

func TestWeightedAverageBounds(t *testing.T) {
	grades := []models.Grade{grade(0, 100, 0.3), grade(100, 100, 0.7), grade(30, 60, 0.5)}
	avg := WeightedAverage(grades)
	assert.GreaterOrEqual(t, avg, 0.0)
	assert.LessOrEqual(t, avg, 100.0)
}

func attendanceWith(statuses ...models.AttendanceStatus) []models.Attendance {
	records := make([]models.Attendance, len(statuses))
	for i, s := range statuses {
		records[i] = models.Attendance{Status: s}
	}
	return records
}

func TestAttendanceRate(t *testing.T) {
	records := attendanceWith(
		models.AttendanceStatusPresent,
		models.AttendanceStatusAbsent,
		models.AttendanceStatusLate,
		models.AttendanceStatusExcused,
	)
	assert.InDelta(t, 25.0, AttendanceRate(records), 1e-9)
}

func TestAttendanceRateEmpty(t *testing.T) {
	assert.Zero(t, AttendanceRate(nil))
}

func TestAttendanceRateOnlyPresentCounts(t *testing.T) {
	// late and excused count against the rate exactly like absent
	records := attendanceWith(
		models.AttendanceStatusLate,
		models.AttendanceStatusExcused,
	)
	assert.Zero(t, AttendanceRate(records))

	records = attendanceWith(
		models.AttendanceStatusPresent,
		models.AttendanceStatusPresent,
	)
	assert.InDelta(t, 100.0, AttendanceRate(records), 1e-9)
}

func TestCountByStatus(t *testing.T) {
	records := attendanceWith(
		models.AttendanceStatusPresent,
		models.AttendanceStatusPresent,
		models.AttendanceStatusAbsent,
		models.AttendanceStatusLate,
	)
	counts := CountByStatus(records)
	assert.Equal(t, 2, counts.Present)
	assert.Equal(t, 1, counts.Absent)
	assert.Equal(t, 1, counts.Late)
	assert.Equal(t, 0, counts.Excused)
	assert.Equal(t, 4, counts.Total)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 83.33, Round2(83.3333333))
	assert.Equal(t, 25.0, Round2(25.0))
}
