package academic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edukita/classtrack-api/internal/models"
)

func TestTermAt(t *testing.T) {
	cases := []struct {
		name     string
		at       time.Time
		year     int
		semester models.Semester
	}{
		{"july is spring", time.Date(2026, time.July, 31, 23, 59, 0, 0, time.UTC), 2026, models.SemesterSpring},
		{"august is fall", time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), 2026, models.SemesterFall},
		{"january is spring", time.Date(2027, time.January, 15, 12, 0, 0, 0, time.UTC), 2027, models.SemesterSpring},
		{"december is fall", time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC), 2026, models.SemesterFall},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			term := TermAt(tc.at)
			assert.Equal(t, tc.year, term.Year)
			assert.Equal(t, tc.semester, term.Semester)
		})
	}
}

func TestTermString(t *testing.T) {
	assert.Equal(t, "Fall 2026", Term{Year: 2026, Semester: models.SemesterFall}.String())
	assert.Equal(t, "Spring 2027", Term{Year: 2027, Semester: models.SemesterSpring}.String())
}
