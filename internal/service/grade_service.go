package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

type gradeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
}

// GradeService manages the weighted grade ledger. All writes go through
// the policy engine, which only admits the teacher owning the class
// behind the enrollment.
type GradeService struct {
	repo      gradeRepository
	engine    authorizer
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(repo gradeRepository, engine authorizer, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, engine: engine, cache: cache, validator: validate, logger: logger}
}

// Create records a grade entry against an enrollment. The teacher of
// record is always the caller. An allow decision implies the enrollment
// exists, so no separate existence check runs here.
func (s *GradeService) Create(ctx context.Context, actor authz.Actor, req models.CreateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.GradeValue > req.MaxValue {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade value cannot exceed the maximum value")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.GradeResource(req.EnrollmentID)); err != nil {
		return nil, err
	}

	grade := &models.Grade{
		EnrollmentID: req.EnrollmentID,
		TeacherID:    actor.ID,
		GradeType:    req.GradeType,
		GradeValue:   req.GradeValue,
		MaxValue:     req.MaxValue,
		Weight:       req.Weight,
		Description:  req.Description,
	}
	if req.GradedAt != nil {
		grade.GradedAt = req.GradedAt.UTC()
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}

	s.invalidateSummary(ctx, grade.EnrollmentID)
	return grade, nil
}

// Get returns one grade entry.
func (s *GradeService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Grade, error) {
	grade, err := s.loadGrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.GradeResource(grade.EnrollmentID)); err != nil {
		return nil, err
	}
	return grade, nil
}

// List returns grade entries. When an enrollment filter is present the
// engine decides on that enrollment's ledger; otherwise teachers see the
// entries they recorded and admins see everything.
func (s *GradeService) List(ctx context.Context, actor authz.Actor, filter models.GradeFilter) ([]models.Grade, *models.Pagination, error) {
	if filter.EnrollmentID != "" {
		if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.GradeResource(filter.EnrollmentID)); err != nil {
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

	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return grades, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update mutates an existing grade entry.
func (s *GradeService) Update(ctx context.Context, actor authz.Actor, id string, req models.UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	grade, err := s.loadGrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionUpdate, authz.GradeResource(grade.EnrollmentID)); err != nil {
		return nil, err
	}

	if req.GradeType != nil {
		grade.GradeType = *req.GradeType
	}
	if req.GradeValue != nil {
		grade.GradeValue = *req.GradeValue
	}
	if req.MaxValue != nil {
		grade.MaxValue = *req.MaxValue
	}
	if req.Weight != nil {
		grade.Weight = *req.Weight
	}
	if req.Description != nil {
		grade.Description = req.Description
	}
	if req.GradedAt != nil {
		grade.GradedAt = req.GradedAt.UTC()
	}
	if grade.GradeValue > grade.MaxValue {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade value cannot exceed the maximum value")
	}

	if err := s.repo.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}

	s.invalidateSummary(ctx, grade.EnrollmentID)
	return grade, nil
}

// Delete removes a grade entry.
func (s *GradeService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	grade, err := s.loadGrade(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionDelete, authz.GradeResource(grade.EnrollmentID)); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}

	s.invalidateSummary(ctx, grade.EnrollmentID)
	return nil
}

func (s *GradeService) loadGrade(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

func (s *GradeService) invalidateSummary(ctx context.Context, enrollmentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf(summaryCacheKey, enrollmentID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
