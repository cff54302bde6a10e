package models

import "time"

// Semester halves the academic year. August through December is Fall; the
// rest of the calendar year is Spring.
type Semester string

const (
	SemesterFall   Semester = "Fall"
	SemesterSpring Semester = "Spring"
)

// Valid returns true when the semester is a supported value.
func (s Semester) Valid() bool {
	return s == SemesterFall || s == SemesterSpring
}

// Enrollment links one student to one class for one academic term.
// (student_id, class_id, academic_year, semester) is unique: a student
// cannot double-enroll in the same offering-term.
type Enrollment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	Semester     Semester  `db:"semester" json:"semester"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	ClassName   string `db:"class_name" json:"class_name"`
	TeacherID   string `db:"class_teacher_id" json:"teacher_id"`
}

// EnrollmentFilter provides filters for listing enrollments. TeacherID
// matches through the class join and scopes teachers to their own
// classes.
type EnrollmentFilter struct {
	StudentID    string
	ClassID      string
	TeacherID    string
	AcademicYear int
	Semester     Semester
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// JoinClassRequest redeems a class join code. The code is matched
// case-insensitively and canonicalized to uppercase.
type JoinClassRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// AttendanceCounts breaks an enrollment's attendance down by status.
type AttendanceCounts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

// EnrollmentSummary carries the computed aggregates for one enrollment.
type EnrollmentSummary struct {
	EnrollmentID    string           `json:"enrollment_id"`
	WeightedAverage float64          `json:"weighted_average"`
	AttendanceRate  float64          `json:"attendance_rate"`
	GradeCount      int              `json:"grade_count"`
	Attendance      AttendanceCounts `json:"attendance"`
	ComputedAt      time.Time        `json:"computed_at"`
}

// TranscriptEntry is one class line on a student transcript. The
// aggregates are computed after the row is loaded.
type TranscriptEntry struct {
	EnrollmentID    string   `db:"enrollment_id" json:"enrollment_id"`
	ClassID         string   `db:"class_id" json:"class_id"`
	ClassName       string   `db:"class_name" json:"class_name"`
	ClassCode       string   `db:"class_code" json:"class_code"`
	Credits         int      `db:"credits" json:"credits"`
	AcademicYear    int      `db:"academic_year" json:"academic_year"`
	Semester        Semester `db:"semester" json:"semester"`
	WeightedAverage float64  `db:"-" json:"weighted_average"`
	AttendanceRate  float64  `db:"-" json:"attendance_rate"`
}

// StudentTranscript aggregates a student's enrollments with their grades.
type StudentTranscript struct {
	StudentID   string            `json:"student_id"`
	StudentName string            `json:"student_name"`
	Entries     []TranscriptEntry `json:"entries"`
	GeneratedAt time.Time         `json:"generated_at"`
}
