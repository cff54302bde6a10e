// Package academic derives the academic term from wall-clock time.
package academic

import (
	"fmt"
	"time"

	"github.com/edukita/classtrack-api/internal/models"
)

// Term is one semester of one academic year.
type Term struct {
	Year     int             `json:"year"`
	Semester models.Semester `json:"semester"`
}

// TermAt resolves the academic term containing the given instant. August
// through December is Fall, January through July is Spring; the year is the
// calendar year of the instant.
func TermAt(t time.Time) Term {
	sem := models.SemesterSpring
	if t.Month() >= time.August {
		sem = models.SemesterFall
	}
	return Term{Year: t.Year(), Semester: sem}
}

// String renders the term like "Fall 2026".
func (t Term) String() string {
	return fmt.Sprintf("%s %d", t.Semester, t.Year)
}
