package authz

import (
	"context"

	"github.com/edukita/classtrack-api/internal/models"
)

// defaultPolicies builds the rule table. Rules within a chain are ORed;
// per-kind, per-action chains with no entry deny everything.
func defaultPolicies() map[Kind]map[Action][]rule {
	return map[Kind]map[Action][]rule{
		KindProfile: {
			ActionSelect: {ruleProfileSelf(), ruleAdmin(), ruleTeacherOfStudent()},
			ActionInsert: {ruleSelfRegistration(), ruleAdmin()},
			ActionUpdate: {ruleProfileSelf(), ruleAdmin()},
			ActionDelete: {ruleAdmin()},
		},
		KindClass: {
			ActionSelect: {ruleClassOwner(), ruleAdmin(), ruleActiveClass()},
			ActionInsert: {ruleTeacherOwnClass(), ruleAdmin()},
			ActionUpdate: {ruleClassOwner(), ruleAdmin()},
			ActionDelete: {ruleClassOwner(), ruleAdmin()},
		},
		KindEnrollment: {
			ActionSelect: {ruleEnrolledStudent(), ruleEnrollmentClassOwner(), ruleAdmin()},
			ActionInsert: {ruleStudentJoinsActiveClass()},
			ActionDelete: {ruleEnrolledStudent(), ruleEnrollmentClassOwner(), ruleAdmin()},
		},
		KindGrade: {
			ActionSelect: {ruleLedgerStudent(), ruleLedgerClassOwner(), ruleAdmin()},
			ActionInsert: {ruleLedgerClassOwner()},
			ActionUpdate: {ruleLedgerClassOwner()},
			ActionDelete: {ruleLedgerClassOwner()},
		},
		KindAttendance: {
			ActionSelect: {ruleLedgerStudent(), ruleLedgerClassOwner(), ruleAdmin()},
			ActionInsert: {ruleLedgerClassOwner()},
			ActionUpdate: {ruleLedgerClassOwner()},
			ActionDelete: {ruleLedgerClassOwner()},
		},
		KindReport: {
			ActionSelect: {ruleReportCreator(), ruleAdmin()},
			ActionInsert: {ruleAdmin(), ruleTeacherReportScope(), ruleStudentOwnTranscript()},
		},
	}
}

// ruleAdmin grants any operation carrying it to administrators.
func ruleAdmin() rule {
	return rule{
		name: "admin",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.Role == models.RoleAdmin, nil
		},
	}
}

// ruleProfileSelf grants access to the caller's own profile row.
func ruleProfileSelf() rule {
	return rule{
		name: "profile_self",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.ID != "" && ev.actor.ID == ev.resource.ProfileID, nil
		},
	}
}

// ruleTeacherOfStudent grants teachers read access to profiles of students
// enrolled in a class they own.
func ruleTeacherOfStudent() rule {
	return rule{
		name: "teacher_of_student",
		check: func(ctx context.Context, ev *evaluation) (bool, error) {
			if ev.actor.Role != models.RoleTeacher || ev.resource.ProfileID == "" {
				return false, nil
			}
			return ev.teacherHasStudent(ctx, ev.actor.ID, ev.resource.ProfileID)
		},
	}
}

// ruleSelfRegistration grants an authenticated subject the insert of its
// own profile, student role only. The actor carries no role yet at this
// point; registration is what establishes it.
func ruleSelfRegistration() rule {
	return rule{
		name: "self_registration",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.ID != "" &&
				ev.actor.ID == ev.resource.ProfileID &&
				ev.resource.ProfileRole == models.RoleStudent, nil
		},
	}
}

// ruleClassOwner grants the owning teacher access to their class row.
func ruleClassOwner() rule {
	return rule{
		name: "class_owner",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.ID != "" && ev.actor.ID == ev.resource.TeacherID, nil
		},
	}
}

// ruleActiveClass opens reads on active classes to any authenticated
// caller. The join code itself is the access-control secret; discoverable
// metadata is intentionally public inside the institution.
func ruleActiveClass() rule {
	return rule{
		name: "active_class",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.ID != "" && ev.resource.IsActive, nil
		},
	}
}

// ruleTeacherOwnClass grants teachers the creation of classes they will
// own themselves.
func ruleTeacherOwnClass() rule {
	return rule{
		name: "teacher_own_class",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.Role == models.RoleTeacher && ev.actor.ID == ev.resource.TeacherID, nil
		},
	}
}

// ruleEnrolledStudent grants the enrolled student access to their own
// enrollment row.
func ruleEnrolledStudent() rule {
	return rule{
		name: "enrolled_student",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.ID != "" && ev.actor.ID == ev.resource.StudentID, nil
		},
	}
}

// ruleEnrollmentClassOwner grants the teacher owning the enrollment's
// class access to the enrollment row.
func ruleEnrollmentClassOwner() rule {
	return rule{
		name: "enrollment_class_owner",
		check: func(ctx context.Context, ev *evaluation) (bool, error) {
			if ev.actor.Role != models.RoleTeacher || ev.resource.ClassID == "" {
				return false, nil
			}
			facts, err := ev.classOwner(ctx, ev.resource.ClassID)
			if err != nil {
				return false, err
			}
			return facts != nil && facts.TeacherID == ev.actor.ID, nil
		},
	}
}

// ruleStudentJoinsActiveClass is the only grant for enrollment inserts: a
// student enrolling themselves into a class that is currently active.
func ruleStudentJoinsActiveClass() rule {
	return rule{
		name: "student_joins_active_class",
		check: func(ctx context.Context, ev *evaluation) (bool, error) {
			if ev.actor.Role != models.RoleStudent || ev.actor.ID != ev.resource.StudentID {
				return false, nil
			}
			if ev.resource.ClassID == "" {
				return false, nil
			}
			facts, err := ev.classOwner(ctx, ev.resource.ClassID)
			if err != nil {
				return false, err
			}
			return facts != nil && facts.IsActive, nil
		},
	}
}

// ruleLedgerStudent grants the enrolled student reads of their own grade
// and attendance rows.
func ruleLedgerStudent() rule {
	return rule{
		name: "ledger_student",
		check: func(ctx context.Context, ev *evaluation) (bool, error) {
			if ev.actor.ID == "" || ev.resource.EnrollmentID == "" {
				return false, nil
			}
			facts, err := ev.enrollmentParties(ctx, ev.resource.EnrollmentID)
			if err != nil {
				return false, err
			}
			return facts != nil && facts.StudentID == ev.actor.ID, nil
		},
	}
}

// ruleLedgerClassOwner grants the teacher owning the enrollment's class
// full access to its grade and attendance rows. Writes carry no other
// rule: not even admins may mutate ledger rows.
func ruleLedgerClassOwner() rule {
	return rule{
		name: "ledger_class_owner",
		check: func(ctx context.Context, ev *evaluation) (bool, error) {
			if ev.actor.ID == "" || ev.resource.EnrollmentID == "" {
				return false, nil
			}
			facts, err := ev.enrollmentParties(ctx, ev.resource.EnrollmentID)
			if err != nil {
				return false, err
			}
			return facts != nil && facts.TeacherID == ev.actor.ID, nil
		},
	}
}

// ruleReportCreator grants report reads to whoever queued the job.
func ruleReportCreator() rule {
	return rule{
		name: "report_creator",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.ID != "" && ev.actor.ID == ev.resource.GeneratedBy, nil
		},
	}
}

// ruleTeacherReportScope grants teachers report creation scoped to a class
// they own, or to a student enrolled with them.
func ruleTeacherReportScope() rule {
	return rule{
		name: "teacher_report_scope",
		check: func(ctx context.Context, ev *evaluation) (bool, error) {
			if ev.actor.Role != models.RoleTeacher {
				return false, nil
			}
			if ev.resource.ClassID != "" {
				facts, err := ev.classOwner(ctx, ev.resource.ClassID)
				if err != nil {
					return false, err
				}
				return facts != nil && facts.TeacherID == ev.actor.ID, nil
			}
			if ev.resource.StudentID != "" {
				return ev.teacherHasStudent(ctx, ev.actor.ID, ev.resource.StudentID)
			}
			return false, nil
		},
	}
}

// ruleStudentOwnTranscript grants students report creation limited to
// their own records.
func ruleStudentOwnTranscript() rule {
	return rule{
		name: "student_own_transcript",
		check: func(_ context.Context, ev *evaluation) (bool, error) {
			return ev.actor.Role == models.RoleStudent &&
				ev.resource.StudentID == ev.actor.ID &&
				ev.resource.ClassID == "", nil
		},
	}
}
