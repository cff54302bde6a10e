package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/academic"
	"github.com/edukita/classtrack-api/internal/aggregate"
	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/joincode"
	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

const summaryCacheKey = "summary:enrollment:%s"

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptEntry, error)
}

type classByCodeReader interface {
	FindActiveByJoinCode(ctx context.Context, code string) (*models.Class, error)
}

type gradeLedgerReader interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Grade, error)
	ListByEnrollmentIDs(ctx context.Context, enrollmentIDs []string) (map[string][]models.Grade, error)
}

type attendanceLedgerReader interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error)
	ListByEnrollmentIDs(ctx context.Context, enrollmentIDs []string) (map[string][]models.Attendance, error)
}

// EnrollmentService manages the join-code workflow and the aggregate
// views derived from enrollments.
type EnrollmentService struct {
	repo       enrollmentRepository
	classes    classByCodeReader
	grades     gradeLedgerReader
	attendance attendanceLedgerReader
	profiles   profileReader
	audit      auditWriter
	engine     authorizer
	cache      *CacheService
	logger     *zap.Logger
	now        func() time.Time
	summaryTTL time.Duration
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, classes classByCodeReader, grades gradeLedgerReader, attendance attendanceLedgerReader, profiles profileReader, audit auditWriter, engine authorizer, cache *CacheService, summaryTTL time.Duration, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if summaryTTL <= 0 {
		summaryTTL = 5 * time.Minute
	}
	return &EnrollmentService{
		repo:       repo,
		classes:    classes,
		grades:     grades,
		attendance: attendance,
		profiles:   profiles,
		audit:      audit,
		engine:     engine,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
		summaryTTL: summaryTTL,
	}
}

// JoinByCode enrolls the caller into the class behind a join code for the
// current academic term. Codes for deactivated classes no longer resolve,
// so those requests surface as not found rather than forbidden.
func (s *EnrollmentService) JoinByCode(ctx context.Context, actor authz.Actor, req models.JoinClassRequest, meta models.RequestMeta) (*models.Enrollment, error) {
	code := joincode.Normalize(req.Code)
	if !joincode.Valid(code) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "join code must be 6 letters or digits")
	}

	class, err := s.classes.FindActiveByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active class matches that code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve join code")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.EnrollmentResource(actor.ID, class.ID)); err != nil {
		return nil, err
	}

	term := academic.TermAt(s.now())
	enrollment := &models.Enrollment{
		StudentID:    actor.ID,
		ClassID:      class.ID,
		AcademicYear: term.Year,
		Semester:     term.Semester,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{
		"class_id":      enrollment.ClassID,
		"academic_year": enrollment.AcademicYear,
		"semester":      enrollment.Semester,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionEnrollmentJoin,
		Resource:   "enrollments",
		ResourceID: &enrollment.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record enrollment join audit log", zap.Error(err))
	}

	return enrollment, nil
}

// Get returns one enrollment with student and class context.
func (s *EnrollmentService) Get(ctx context.Context, actor authz.Actor, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.EnrollmentResource(detail.StudentID, detail.ClassID)); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns enrollments scoped to the caller's role: admins see all,
// teachers the rosters of their classes, students their own record.
func (s *EnrollmentService) List(ctx context.Context, actor authz.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleAdmin:
		// unrestricted
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	default:
		filter.StudentID = actor.ID
	}

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Leave removes an enrollment. The grade and attendance rows beneath it
// go with it through the foreign keys.
func (s *EnrollmentService) Leave(ctx context.Context, actor authz.Actor, id string, meta models.RequestMeta) error {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionDelete, authz.EnrollmentResource(detail.StudentID, detail.ClassID)); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{
		"student_id":    detail.StudentID,
		"class_id":      detail.ClassID,
		"academic_year": detail.AcademicYear,
		"semester":      detail.Semester,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionEnrollmentLeave,
		Resource:   "enrollments",
		ResourceID: &id,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record enrollment leave audit log", zap.Error(err))
	}

	s.invalidateSummary(ctx, id)
	return nil
}

// Summary computes the weighted grade average and attendance aggregates
// for one enrollment, serving from cache when possible. The bool reports
// whether the result came from cache.
func (s *EnrollmentService) Summary(ctx context.Context, actor authz.Actor, id string) (*models.EnrollmentSummary, bool, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.EnrollmentResource(detail.StudentID, detail.ClassID)); err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf(summaryCacheKey, id)
	if s.cache != nil {
		var cached models.EnrollmentSummary
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	grades, err := s.grades.ListByEnrollment(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	records, err := s.attendance.ListByEnrollment(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	summary := &models.EnrollmentSummary{
		EnrollmentID:    id,
		WeightedAverage: aggregate.Round2(aggregate.WeightedAverage(grades)),
		AttendanceRate:  aggregate.Round2(aggregate.AttendanceRate(records)),
		GradeCount:      len(grades),
		Attendance:      aggregate.CountByStatus(records),
		ComputedAt:      s.now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.summaryTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return summary, false, nil
}

// Transcript assembles a student's full enrollment history with per-class
// aggregates. Visibility follows profile reads: the student themselves,
// any teacher currently teaching them, or an admin.
func (s *EnrollmentService) Transcript(ctx context.Context, actor authz.Actor, studentID string) (*models.StudentTranscript, error) {
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.ProfileResource(studentID)); err != nil {
		return nil, err
	}

	student, err := s.profiles.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transcripts exist for students only")
	}

	entries, err := s.repo.TranscriptRows(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript rows")
	}

	if len(entries) > 0 {
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.EnrollmentID)
		}
		gradesByEnrollment, err := s.grades.ListByEnrollmentIDs(ctx, ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		attendanceByEnrollment, err := s.attendance.ListByEnrollmentIDs(ctx, ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		for i := range entries {
			entries[i].WeightedAverage = aggregate.Round2(aggregate.WeightedAverage(gradesByEnrollment[entries[i].EnrollmentID]))
			entries[i].AttendanceRate = aggregate.Round2(aggregate.AttendanceRate(attendanceByEnrollment[entries[i].EnrollmentID]))
		}
	}

	return &models.StudentTranscript{
		StudentID:   studentID,
		StudentName: student.FullName(),
		Entries:     entries,
		GeneratedAt: s.now().UTC(),
	}, nil
}

func (s *EnrollmentService) loadDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

func (s *EnrollmentService) invalidateSummary(ctx context.Context, enrollmentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf(summaryCacheKey, enrollmentID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
