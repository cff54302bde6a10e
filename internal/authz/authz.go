// Package authz implements the authorization policy engine. Every read and
// write on every entity passes through Engine.Authorize, which decides
// ALLOW or DENY for one (actor, action, resource) tuple at a time.
package authz

import "github.com/edukita/classtrack-api/internal/models"

// Action is a data-layer operation. Each operation is granted separately;
// there is no combined "manage all" shortcut.
type Action string

const (
	ActionSelect Action = "select"
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Kind identifies the entity type a resource refers to.
type Kind string

const (
	KindProfile    Kind = "profile"
	KindClass      Kind = "class"
	KindEnrollment Kind = "enrollment"
	KindGrade      Kind = "grade"
	KindAttendance Kind = "attendance"
	KindReport     Kind = "report"
)

// Actor is the acting identity with its role already resolved. The role
// comes from the identity middleware's dedicated lookup before any rule
// runs; no rule may query the table it protects to discover it.
type Actor struct {
	ID   string
	Role models.Role
}

// Resource describes the row under evaluation. Only the fields relevant to
// its kind are populated; rules resolve missing relationship facts through
// the Relations lookups.
type Resource struct {
	Kind Kind

	// profile targets
	ProfileID   string
	ProfileRole models.Role

	// class facts
	TeacherID string
	IsActive  bool

	// enrollment parties
	StudentID string
	ClassID   string

	// grade and attendance scope
	EnrollmentID string

	// report creator
	GeneratedBy string
}

// ProfileResource targets an existing profile row.
func ProfileResource(profileID string) Resource {
	return Resource{Kind: KindProfile, ProfileID: profileID}
}

// ProfileCreation targets a profile insert with the requested role.
func ProfileCreation(profileID string, role models.Role) Resource {
	return Resource{Kind: KindProfile, ProfileID: profileID, ProfileRole: role}
}

// ClassResource targets an existing class row with its ownership facts.
func ClassResource(teacherID string, isActive bool) Resource {
	return Resource{Kind: KindClass, TeacherID: teacherID, IsActive: isActive}
}

// ClassCreation targets a class insert owned by the given teacher.
func ClassCreation(teacherID string) Resource {
	return Resource{Kind: KindClass, TeacherID: teacherID}
}

// EnrollmentResource targets an enrollment row by its parties.
func EnrollmentResource(studentID, classID string) Resource {
	return Resource{Kind: KindEnrollment, StudentID: studentID, ClassID: classID}
}

// GradeResource targets grade rows scoped to one enrollment.
func GradeResource(enrollmentID string) Resource {
	return Resource{Kind: KindGrade, EnrollmentID: enrollmentID}
}

// AttendanceResource targets attendance rows scoped to one enrollment.
func AttendanceResource(enrollmentID string) Resource {
	return Resource{Kind: KindAttendance, EnrollmentID: enrollmentID}
}

// ReportResource targets an existing report row by its creator.
func ReportResource(generatedBy string) Resource {
	return Resource{Kind: KindReport, GeneratedBy: generatedBy}
}

// ReportCreation targets a report insert scoped to an optional student
// and/or class.
func ReportCreation(studentID, classID string) Resource {
	return Resource{Kind: KindReport, StudentID: studentID, ClassID: classID}
}
