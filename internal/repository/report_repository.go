package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edukita/classtrack-api/internal/models"
)

// ReportRepository persists report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, generated_by, report_type, params, status, file_url, error_message, generated_at, created_at`

// Create inserts a new report job row with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusQueued
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reports (id, generated_by, report_type, params, status, file_url, error_message, generated_at, created_at)
VALUES (:id, :generated_by, :report_type, :params, :status, :file_url, :error_message, :generated_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID returns a report row by its identifier.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.Report, error) {
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1 LIMIT 1`, reportColumns)
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report by id: %w", err)
	}
	return &report, nil
}

// ListByGenerator returns the most recent reports queued by one caller.
func (r *ReportRepository) ListByGenerator(ctx context.Context, generatedBy string, limit int) ([]models.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE generated_by = $1 ORDER BY created_at DESC LIMIT $2`, reportColumns)
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query, generatedBy, limit); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// UpdateReportParams defines the mutable fields of a report job row.
type UpdateReportParams struct {
	Status       *models.ReportStatus
	FileURL      *string
	ErrorMessage *string
	GeneratedAt  *time.Time
}

// Update persists the provided changes for a report row.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportParams) error {
	set := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.FileURL != nil {
		set = append(set, fmt.Sprintf("file_url = $%d", argPos))
		args = append(args, *params.FileURL)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.GeneratedAt != nil {
		set = append(set, fmt.Sprintf("generated_at = $%d", argPos))
		args = append(args, *params.GeneratedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE reports SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

// ListQueued fetches queued reports (used for cold start recovery).
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`, reportColumns)
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query, limit); err != nil {
		return nil, fmt.Errorf("list queued reports: %w", err)
	}
	return reports, nil
}

// ListFinishedBefore fetches finished reports generated before the
// cutoff (used to expire stored files).
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE status = 'FINISHED' AND generated_at < $1 ORDER BY generated_at ASC LIMIT $2`, reportColumns)
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished reports: %w", err)
	}
	return reports, nil
}
