package authz

import "context"

// ClassFacts are the ownership facts rules need about a class.
type ClassFacts struct {
	TeacherID string
	IsActive  bool
}

// EnrollmentFacts identify the parties of an enrollment: the enrolled
// student and the class with its owning teacher.
type EnrollmentFacts struct {
	StudentID string
	ClassID   string
	TeacherID string
}

// Relations resolves relationship facts between actors and rows. The
// lookups must not themselves be gated by the policies they feed. A
// missing row yields nil facts with a nil error; errors are reserved
// for lookups that actually failed.
type Relations interface {
	ClassOwner(ctx context.Context, classID string) (*ClassFacts, error)
	EnrollmentParties(ctx context.Context, enrollmentID string) (*EnrollmentFacts, error)
	TeacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error)
}

// evaluation carries the state of one Authorize call: the tuple under
// decision plus memoized relation lookups so an OR-chain of rules never
// repeats a query.
type evaluation struct {
	actor    Actor
	action   Action
	resource Resource
	rel      Relations

	classFacts      map[string]*ClassFacts
	enrollmentFacts map[string]*EnrollmentFacts
	hasStudent      map[string]bool
}

func newEvaluation(actor Actor, action Action, res Resource, rel Relations) *evaluation {
	return &evaluation{
		actor:           actor,
		action:          action,
		resource:        res,
		rel:             rel,
		classFacts:      make(map[string]*ClassFacts),
		enrollmentFacts: make(map[string]*EnrollmentFacts),
		hasStudent:      make(map[string]bool),
	}
}

func (ev *evaluation) classOwner(ctx context.Context, classID string) (*ClassFacts, error) {
	if facts, ok := ev.classFacts[classID]; ok {
		return facts, nil
	}
	facts, err := ev.rel.ClassOwner(ctx, classID)
	if err != nil {
		return nil, err
	}
	ev.classFacts[classID] = facts
	return facts, nil
}

func (ev *evaluation) enrollmentParties(ctx context.Context, enrollmentID string) (*EnrollmentFacts, error) {
	if facts, ok := ev.enrollmentFacts[enrollmentID]; ok {
		return facts, nil
	}
	facts, err := ev.rel.EnrollmentParties(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	ev.enrollmentFacts[enrollmentID] = facts
	return facts, nil
}

func (ev *evaluation) teacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error) {
	key := teacherID + "|" + studentID
	if has, ok := ev.hasStudent[key]; ok {
		return has, nil
	}
	has, err := ev.rel.TeacherHasStudent(ctx, teacherID, studentID)
	if err != nil {
		return false, err
	}
	ev.hasStudent[key] = has
	return has, nil
}
