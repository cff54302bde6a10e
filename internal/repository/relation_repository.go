package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edukita/classtrack-api/internal/authz"
)

// RelationRepository resolves the ownership and enrollment facts the
// policy engine consults. Its lookups bypass the policy layer entirely;
// a rule asking "who owns this class" must never trigger another
// authorization decision.
type RelationRepository struct {
	db *sqlx.DB
}

// NewRelationRepository constructs the repository.
func NewRelationRepository(db *sqlx.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

var _ authz.Relations = (*RelationRepository)(nil)

// ClassOwner returns the owning teacher and active flag of a class. A
// missing class yields nil facts, not an error, so rules treat it as a
// plain non-match.
func (r *RelationRepository) ClassOwner(ctx context.Context, classID string) (*authz.ClassFacts, error) {
	const query = `SELECT teacher_id, is_active FROM classes WHERE id = $1 LIMIT 1`
	var row struct {
		TeacherID string `db:"teacher_id"`
		IsActive  bool   `db:"is_active"`
	}
	if err := r.db.GetContext(ctx, &row, query, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve class owner: %w", err)
	}
	return &authz.ClassFacts{TeacherID: row.TeacherID, IsActive: row.IsActive}, nil
}

// EnrollmentParties returns the student, class and owning teacher of an
// enrollment. A missing enrollment yields nil facts.
func (r *RelationRepository) EnrollmentParties(ctx context.Context, enrollmentID string) (*authz.EnrollmentFacts, error) {
	const query = `SELECT e.student_id, e.class_id, c.teacher_id
FROM enrollments e
JOIN classes c ON c.id = e.class_id
WHERE e.id = $1 LIMIT 1`
	var row struct {
		StudentID string `db:"student_id"`
		ClassID   string `db:"class_id"`
		TeacherID string `db:"teacher_id"`
	}
	if err := r.db.GetContext(ctx, &row, query, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve enrollment parties: %w", err)
	}
	return &authz.EnrollmentFacts{StudentID: row.StudentID, ClassID: row.ClassID, TeacherID: row.TeacherID}, nil
}

// TeacherHasStudent reports whether the student is enrolled in any class
// owned by the teacher.
func (r *RelationRepository) TeacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error) {
	const query = `SELECT 1
FROM enrollments e
JOIN classes c ON c.id = e.class_id
WHERE c.teacher_id = $1 AND e.student_id = $2
LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, teacherID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("resolve teacher student relation: %w", err)
	}
	return true, nil
}
