package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

type mockRelations struct {
	classes     map[string]*ClassFacts
	enrollments map[string]*EnrollmentFacts
	hasStudent  map[string]bool
	err         error

	classCalls int
	partyCalls int
}

func (m *mockRelations) ClassOwner(_ context.Context, classID string) (*ClassFacts, error) {
	m.classCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.classes[classID], nil
}

func (m *mockRelations) EnrollmentParties(_ context.Context, enrollmentID string) (*EnrollmentFacts, error) {
	m.partyCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.enrollments[enrollmentID], nil
}

func (m *mockRelations) TeacherHasStudent(_ context.Context, teacherID, studentID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.hasStudent[teacherID+"|"+studentID], nil
}

func newTestEngine(rel *mockRelations) *Engine {
	return NewEngine(rel, nil)
}

func defaultRelations() *mockRelations {
	return &mockRelations{
		classes: map[string]*ClassFacts{
			"c1": {TeacherID: "t1", IsActive: true},
			"c2": {TeacherID: "t2", IsActive: false},
		},
		enrollments: map[string]*EnrollmentFacts{
			"e1": {StudentID: "s1", ClassID: "c1", TeacherID: "t1"},
		},
		hasStudent: map[string]bool{"t1|s1": true},
	}
}

func TestStudentCannotInsertGrade(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	err := engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, GradeResource("e1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden, err)
}

func TestOwningTeacherWritesLedger(t *testing.T) {
	engine := newTestEngine(defaultRelations())
	owner := Actor{ID: "t1", Role: models.RoleTeacher}
	stranger := Actor{ID: "t2", Role: models.RoleTeacher}

	for _, action := range []Action{ActionInsert, ActionUpdate, ActionDelete} {
		assert.NoError(t, engine.Authorize(context.Background(), owner, action, GradeResource("e1")))
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), stranger, action, GradeResource("e1")))
		assert.NoError(t, engine.Authorize(context.Background(), owner, action, AttendanceResource("e1")))
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), stranger, action, AttendanceResource("e1")))
	}
}

func TestAdminReadsButNeverWritesLedger(t *testing.T) {
	engine := newTestEngine(defaultRelations())
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	assert.NoError(t, engine.Authorize(context.Background(), admin, ActionSelect, GradeResource("e1")))
	assert.NoError(t, engine.Authorize(context.Background(), admin, ActionSelect, AttendanceResource("e1")))

	for _, action := range []Action{ActionInsert, ActionUpdate, ActionDelete} {
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), admin, action, GradeResource("e1")))
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), admin, action, AttendanceResource("e1")))
	}
}

func TestEnrolledStudentReadsOwnLedgerOnly(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionSelect, GradeResource("e1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s2", Role: models.RoleStudent}, ActionSelect, GradeResource("e1")))
}

func TestEnrollmentInsertRules(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	// student joining an active class for themselves
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, EnrollmentResource("s1", "c1")))

	// inactive class
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, EnrollmentResource("s1", "c2")))

	// joining on behalf of someone else
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, EnrollmentResource("s2", "c1")))

	// enrollment insert has no teacher or admin grant
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, EnrollmentResource("s1", "c1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionInsert, EnrollmentResource("s1", "c1")))
}

func TestEnrollmentReadAndDelete(t *testing.T) {
	engine := newTestEngine(defaultRelations())
	res := EnrollmentResource("s1", "c1")

	for _, action := range []Action{ActionSelect, ActionDelete} {
		assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, action, res))
		assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, action, res))
		assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, action, res))
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s2", Role: models.RoleStudent}, action, res))
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t2", Role: models.RoleTeacher}, action, res))
	}
}

func TestProfileRules(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	// reads: self, admin, teacher with an enrolled student
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionSelect, ProfileResource("s1")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionSelect, ProfileResource("s1")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionSelect, ProfileResource("s1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t2", Role: models.RoleTeacher}, ActionSelect, ProfileResource("s1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s2", Role: models.RoleStudent}, ActionSelect, ProfileResource("s1")))

	// inserts: self-registration as student, or admin for any role
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "u9"}, ActionInsert, ProfileCreation("u9", models.RoleStudent)))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "u9"}, ActionInsert, ProfileCreation("u9", models.RoleTeacher)))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "u9"}, ActionInsert, ProfileCreation("other", models.RoleStudent)))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionInsert, ProfileCreation("u9", models.RoleTeacher)))

	// updates: self or admin; deletes: admin only
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionUpdate, ProfileResource("s1")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionUpdate, ProfileResource("s1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionUpdate, ProfileResource("s1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionDelete, ProfileResource("s1")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionDelete, ProfileResource("s1")))
}

func TestClassRules(t *testing.T) {
	engine := newTestEngine(defaultRelations())
	active := ClassResource("t1", true)
	inactive := ClassResource("t1", false)

	// active classes are readable by anyone authenticated
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s2", Role: models.RoleStudent}, ActionSelect, active))

	// inactive classes only by the owner or admin
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionSelect, inactive))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionSelect, inactive))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionSelect, inactive))

	// creation: a teacher for themselves, an admin for anyone
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, ClassCreation("t1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, ClassCreation("t2")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, ClassCreation("s1")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionInsert, ClassCreation("t2")))

	// mutation: owner or admin
	for _, action := range []Action{ActionUpdate, ActionDelete} {
		assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, action, active))
		assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, action, active))
		assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t2", Role: models.RoleTeacher}, action, active))
	}
}

func TestReportRules(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "u1", Role: models.RoleStudent}, ActionSelect, ReportResource("u1")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionSelect, ReportResource("u1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "u2", Role: models.RoleStudent}, ActionSelect, ReportResource("u1")))

	// teacher scope: own class yes, foreign class no, enrolled student yes
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, ReportCreation("", "c1")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, ReportCreation("", "c2")))
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, ReportCreation("s1", "")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, ReportCreation("s2", "")))

	// students are limited to their own transcript
	assert.NoError(t, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, ReportCreation("s1", "")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, ReportCreation("s2", "")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, ReportCreation("s1", "c1")))
}

func TestEvaluationMemoizesLookups(t *testing.T) {
	rel := defaultRelations()
	engine := newTestEngine(rel)

	// both ledger rules consult the same enrollment; the lookup runs once
	err := engine.Authorize(context.Background(), Actor{ID: "t2", Role: models.RoleTeacher}, ActionSelect, GradeResource("e1"))
	assert.Equal(t, appErrors.ErrForbidden, err)
	assert.Equal(t, 1, rel.partyCalls)
}

func TestLookupFailureNeverGrants(t *testing.T) {
	rel := defaultRelations()
	rel.err = errors.New("connection reset")
	engine := newTestEngine(rel)

	err := engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, GradeResource("e1"))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

func TestMissingRowDenies(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	// unknown enrollment and class IDs resolve to nil facts, a plain non-match
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, ActionInsert, GradeResource("missing")))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, ActionInsert, EnrollmentResource("s1", "missing")))
}

func TestUnknownKindOrActionDenies(t *testing.T) {
	engine := newTestEngine(defaultRelations())

	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionSelect, Resource{Kind: "unknown"}))
	assert.Equal(t, appErrors.ErrForbidden, engine.Authorize(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, ActionUpdate, ReportResource("a1")))
}
