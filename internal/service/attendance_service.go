package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

const attendanceDateLayout = "2006-01-02"

type attendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	Upsert(ctx context.Context, record *models.Attendance) error
	Update(ctx context.Context, record *models.Attendance) error
	Delete(ctx context.Context, id string) error
}

// AttendanceService manages per-day attendance records. Marking is an
// upsert keyed on (enrollment, date), so re-marking a day overwrites the
// earlier status instead of stacking records.
type AttendanceService struct {
	repo      attendanceRepository
	engine    authorizer
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(repo attendanceRepository, engine authorizer, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, engine: engine, cache: cache, validator: validate, logger: logger}
}

// Mark records attendance for an enrollment on a calendar date.
func (s *AttendanceService) Mark(ctx context.Context, actor authz.Actor, req models.MarkAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := time.Parse(attendanceDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use the YYYY-MM-DD format")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.AttendanceResource(req.EnrollmentID)); err != nil {
		return nil, err
	}

	record := &models.Attendance{
		EnrollmentID: req.EnrollmentID,
		TeacherID:    actor.ID,
		Date:         date,
		Status:       req.Status,
		Notes:        req.Notes,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateSummary(ctx, record.EnrollmentID)
	return record, nil
}

// Get returns one attendance record.
func (s *AttendanceService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Attendance, error) {
	record, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.AttendanceResource(record.EnrollmentID)); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns attendance records. With an enrollment filter the engine
// decides on that ledger; otherwise teachers and admins browse their
// scope directly.
func (s *AttendanceService) List(ctx context.Context, actor authz.Actor, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	if filter.EnrollmentID != "" {
		if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.AttendanceResource(filter.EnrollmentID)); err != nil {
			return nil, nil, err
		}
	} else {
		switch actor.Role {
		case models.RoleAdmin:
			// unrestricted
		case models.RoleTeacher:
			filter.TeacherID = actor.ID
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "enrollmentId is required")
		}
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update mutates the status or notes of an existing record. The date and
// enrollment are fixed; re-marking a different date is a new Mark call.
func (s *AttendanceService) Update(ctx context.Context, actor authz.Actor, id string, req models.UpdateAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	record, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionUpdate, authz.AttendanceResource(record.EnrollmentID)); err != nil {
		return nil, err
	}

	if req.Status != nil {
		record.Status = *req.Status
	}
	if req.Notes != nil {
		record.Notes = req.Notes
	}

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}

	s.invalidateSummary(ctx, record.EnrollmentID)
	return record, nil
}

// Delete removes an attendance record.
func (s *AttendanceService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	record, err := s.loadRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionDelete, authz.AttendanceResource(record.EnrollmentID)); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}

	s.invalidateSummary(ctx, record.EnrollmentID)
	return nil
}

func (s *AttendanceService) loadRecord(ctx context.Context, id string) (*models.Attendance, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

func (s *AttendanceService) invalidateSummary(ctx context.Context, enrollmentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf(summaryCacheKey, enrollmentID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
