package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edukita/classtrack-api/internal/models"
)

// GradeRepository handles persistence of grade entries.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, enrollment_id, teacher_id, grade_type, grade_value, max_value, weight, description, graded_at, created_at, updated_at`

// FindByID returns a grade by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades WHERE id = $1 LIMIT 1`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade by id: %w", err)
	}
	return &grade, nil
}

// ListByEnrollment returns every grade of one enrollment ordered by
// grading time. Aggregation needs the full list, so there is no paging.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades WHERE enrollment_id = $1 ORDER BY graded_at, created_at`, gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// ListByEnrollmentIDs returns all grades of the given enrollments grouped
// by enrollment.
func (r *GradeRepository) ListByEnrollmentIDs(ctx context.Context, enrollmentIDs []string) (map[string][]models.Grade, error) {
	grouped := make(map[string][]models.Grade, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return grouped, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM grades WHERE enrollment_id = ANY($1) ORDER BY graded_at, created_at`, gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, pq.StringArray(enrollmentIDs)); err != nil {
		return nil, fmt.Errorf("list grades by enrollments: %w", err)
	}
	for _, g := range grades {
		grouped[g.EnrollmentID] = append(grouped[g.EnrollmentID], g)
	}
	return grouped, nil
}

// List returns grades filtered by the provided criteria with pagination.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	baseQuery := `FROM grades WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.GradeType != "" {
		conditions = append(conditions, fmt.Sprintf("grade_type = $%d", len(args)+1))
		args = append(args, filter.GradeType)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "graded_at"
	}
	allowedSorts := map[string]bool{
		"graded_at":  true,
		"created_at": true,
		"grade_type": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "graded_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", gradeColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}

	return grades, total, nil
}

// Create persists a new grade entry.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.GradedAt.IsZero() {
		grade.GradedAt = now
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now

	const query = `INSERT INTO grades (id, enrollment_id, teacher_id, grade_type, grade_value, max_value, weight, description, graded_at, created_at, updated_at)
        VALUES (:id, :enrollment_id, :teacher_id, :grade_type, :grade_value, :max_value, :weight, :description, :graded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update updates mutable fields of a grade entry.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET grade_type = :grade_type, grade_value = :grade_value, max_value = :max_value, weight = :weight, description = :description, graded_at = :graded_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade entry.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grades WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}
