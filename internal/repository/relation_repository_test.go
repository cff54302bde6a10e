package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelationMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRelationClassOwner(t *testing.T) {
	db, mock, cleanup := newRelationMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, is_active FROM classes WHERE id = $1 LIMIT 1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "is_active"}).AddRow("t1", true))

	facts, err := repo.ClassOwner(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, facts)
	assert.Equal(t, "t1", facts.TeacherID)
	assert.True(t, facts.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationClassOwnerMissing(t *testing.T) {
	db, mock, cleanup := newRelationMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectQuery("SELECT teacher_id, is_active FROM classes").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	facts, err := repo.ClassOwner(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, facts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationEnrollmentParties(t *testing.T) {
	db, mock, cleanup := newRelationMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectQuery("SELECT e.student_id, e.class_id, c.teacher_id").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "class_id", "teacher_id"}).AddRow("s1", "c1", "t1"))

	facts, err := repo.EnrollmentParties(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, facts)
	assert.Equal(t, "s1", facts.StudentID)
	assert.Equal(t, "c1", facts.ClassID)
	assert.Equal(t, "t1", facts.TeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationTeacherHasStudent(t *testing.T) {
	db, mock, cleanup := newRelationMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectQuery("SELECT 1").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1").
		WithArgs("t1", "s9").
		WillReturnError(sql.ErrNoRows)

	has, err := repo.TeacherHasStudent(context.Background(), "t1", "s1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.TeacherHasStudent(context.Background(), "t1", "s9")
	require.NoError(t, err)
	assert.False(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}
