package models

import "time"

// Class represents a teachable unit owned by a single teacher. JoinCode is
// the shareable 6-character token students redeem to enroll; it is unique
// across classes and stops resolving once the class is deactivated.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	JoinCode    *string   `db:"join_code" json:"join_code,omitempty"`
	Credits     int       `db:"credits" json:"credits"`
	Description *string   `db:"description" json:"description,omitempty"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with the owning teacher's name.
type ClassDetail struct {
	Class
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TeacherID string
	IsActive  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateClassRequest creates a class owned by the requesting teacher, or by
// an explicit teacher when an admin provisions on their behalf.
type CreateClassRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Code        string  `json:"code" validate:"required,min=1,max=32"`
	Credits     int     `json:"credits" validate:"gte=0,lte=40"`
	Description *string `json:"description,omitempty"`
	TeacherID   string  `json:"teacher_id,omitempty"`
}

// UpdateClassRequest mutates class fields owned by the teacher or admin.
type UpdateClassRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Code        *string `json:"code,omitempty" validate:"omitempty,min=1,max=32"`
	Credits     *int    `json:"credits,omitempty" validate:"omitempty,gte=0,lte=40"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// RosterEntry is one student row in a class roster.
type RosterEntry struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	StudentName  string    `db:"student_name" json:"student_name"`
	Email        string    `db:"email" json:"email"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	Semester     Semester  `db:"semester" json:"semester"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}
