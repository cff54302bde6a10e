package models

import "time"

// GradeType categorizes a graded piece of work.
type GradeType string

const (
	GradeTypeExam       GradeType = "exam"
	GradeTypeQuiz       GradeType = "quiz"
	GradeTypeAssignment GradeType = "assignment"
	GradeTypeProject    GradeType = "project"
	GradeTypeMidterm    GradeType = "midterm"
	GradeTypeFinal      GradeType = "final"
)

// Valid returns true when the grade type is a supported value.
func (t GradeType) Valid() bool {
	switch t {
	case GradeTypeExam, GradeTypeQuiz, GradeTypeAssignment, GradeTypeProject, GradeTypeMidterm, GradeTypeFinal:
		return true
	default:
		return false
	}
}

// Grade represents one weighted grade entry scoped to an enrollment.
// Weight is a relative-importance coefficient in [0,1] assigned freely per
// entry; it does not normalize point totals.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	GradeType    GradeType `db:"grade_type" json:"grade_type"`
	GradeValue   float64   `db:"grade_value" json:"grade_value"`
	MaxValue     float64   `db:"max_value" json:"max_value"`
	Weight       float64   `db:"weight" json:"weight"`
	Description  *string   `db:"description" json:"description,omitempty"`
	GradedAt     time.Time `db:"graded_at" json:"graded_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Percentage returns the entry's score scaled to 0-100.
func (g Grade) Percentage() float64 {
	if g.MaxValue <= 0 {
		return 0
	}
	return g.GradeValue / g.MaxValue * 100
}

// GradeFilter scopes grade listing queries.
type GradeFilter struct {
	EnrollmentID string
	TeacherID    string
	GradeType    GradeType
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CreateGradeRequest records a new grade entry for an enrollment.
type CreateGradeRequest struct {
	EnrollmentID string     `json:"enrollment_id" validate:"required"`
	GradeType    GradeType  `json:"grade_type" validate:"required,oneof=exam quiz assignment project midterm final"`
	GradeValue   float64    `json:"grade_value" validate:"gte=0"`
	MaxValue     float64    `json:"max_value" validate:"gt=0"`
	Weight       float64    `json:"weight" validate:"gte=0,lte=1"`
	Description  *string    `json:"description,omitempty"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
}

// UpdateGradeRequest mutates an existing grade entry.
type UpdateGradeRequest struct {
	GradeType   *GradeType `json:"grade_type,omitempty" validate:"omitempty,oneof=exam quiz assignment project midterm final"`
	GradeValue  *float64   `json:"grade_value,omitempty" validate:"omitempty,gte=0"`
	MaxValue    *float64   `json:"max_value,omitempty" validate:"omitempty,gt=0"`
	Weight      *float64   `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Description *string    `json:"description,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}
