package models

import "time"

// AttendanceStatus represents the status for attendance records. Only
// "present" counts toward the attendance rate; late and excused count
// against it exactly like absent.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attendance is one per-day attendance record scoped to an enrollment.
// At most one record exists per (enrollment_id, date).
type Attendance struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	TeacherID    string           `db:"teacher_id" json:"teacher_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter scopes attendance listing queries. TeacherID matches
// the recording teacher and scopes teachers to their own entries.
type AttendanceFilter struct {
	EnrollmentID string
	TeacherID    string
	Status       *AttendanceStatus
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// MarkAttendanceRequest records attendance for an enrollment on a date.
// Marking the same date twice overwrites the earlier status.
type MarkAttendanceRequest struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	Status       AttendanceStatus `json:"status" validate:"required,oneof=present absent late excused"`
	Notes        *string          `json:"notes,omitempty"`
}

// UpdateAttendanceRequest mutates an existing attendance record.
type UpdateAttendanceRequest struct {
	Status *AttendanceStatus `json:"status,omitempty" validate:"omitempty,oneof=present absent late excused"`
	Notes  *string           `json:"notes,omitempty"`
}
