package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/joincode"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/repository"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

// maxJoinCodeAttempts bounds how often class creation redraws a join code
// after losing to the unique index.
const maxJoinCodeAttempts = 5

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Deactivate(ctx context.Context, id string) error
	UpdateJoinCode(ctx context.Context, id, code string) error
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ClassService coordinates class lifecycle and roster operations.
type ClassService struct {
	repo      classRepository
	profiles  profileReader
	audit     auditWriter
	engine    authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(repo classRepository, profiles profileReader, audit auditWriter, engine authorizer, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, profiles: profiles, audit: audit, engine: engine, validator: validate, logger: logger}
}

// Create adds a class owned by the caller, or by the teacher an admin
// names in the payload. The join code is drawn fresh and redrawn a
// bounded number of times if the unique index reports a collision.
func (s *ClassService) Create(ctx context.Context, actor authz.Actor, req models.CreateClassRequest, meta models.RequestMeta) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	ownerID := req.TeacherID
	if ownerID == "" {
		ownerID = actor.ID
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.ClassCreation(ownerID)); err != nil {
		return nil, err
	}

	owner, err := s.profiles.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "owning teacher does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load owning teacher")
	}
	if owner.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classes must be owned by a teacher")
	}

	class := &models.Class{
		Name:        req.Name,
		Code:        req.Code,
		Credits:     req.Credits,
		Description: req.Description,
		TeacherID:   ownerID,
		IsActive:    true,
	}

	for attempt := 0; ; attempt++ {
		code, err := joincode.Generate()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate join code")
		}
		class.JoinCode = &code

		err = s.repo.Create(ctx, class)
		if err == nil {
			break
		}
		if repository.IsUniqueViolation(err) && attempt < maxJoinCodeAttempts-1 {
			s.logger.Debug("join code collision, redrawing", zap.Int("attempt", attempt+1))
			continue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": class.Name, "code": class.Code, "teacher_id": class.TeacherID})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionClassCreate,
		Resource:   "classes",
		ResourceID: &class.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record class create audit log", zap.Error(err))
	}

	return class, nil
}

// List returns classes scoped to the caller's role: admins see all,
// teachers their own, students the active catalog.
func (s *ClassService) List(ctx context.Context, actor authz.Actor, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleAdmin:
		// unrestricted
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	default:
		active := true
		filter.IsActive = &active
	}

	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	if actor.Role != models.RoleAdmin {
		for i := range classes {
			if classes[i].TeacherID != actor.ID {
				classes[i].JoinCode = nil
			}
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns detailed class information. Active classes are readable by
// anyone authenticated; inactive ones only by the owner or an admin.
func (s *ClassService) Get(ctx context.Context, actor authz.Actor, id string) (*models.ClassDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.ClassResource(detail.TeacherID, detail.IsActive)); err != nil {
		return nil, err
	}

	// the join code is only the owner's and admin's to share
	if actor.Role != models.RoleAdmin && actor.ID != detail.TeacherID {
		detail.JoinCode = nil
	}

	return detail, nil
}

// Update mutates class fields owned by the teacher or an admin.
func (s *ClassService) Update(ctx context.Context, actor authz.Actor, id string, req models.UpdateClassRequest, meta models.RequestMeta) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionUpdate, authz.ClassResource(class.TeacherID, class.IsActive)); err != nil {
		return nil, err
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": class.Name, "code": class.Code, "is_active": class.IsActive})

	if req.Name != nil {
		class.Name = *req.Name
	}
	if req.Code != nil {
		class.Code = *req.Code
	}
	if req.Credits != nil {
		class.Credits = *req.Credits
	}
	if req.Description != nil {
		class.Description = req.Description
	}
	if req.IsActive != nil {
		class.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": class.Name, "code": class.Code, "is_active": class.IsActive})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionClassUpdate,
		Resource:   "classes",
		ResourceID: &class.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record class update audit log", zap.Error(err))
	}

	return class, nil
}

// Deactivate retires a class. Enrollment history stays intact; the class
// stops resolving in join flows and in non-owner reads.
func (s *ClassService) Deactivate(ctx context.Context, actor authz.Actor, id string, meta models.RequestMeta) error {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionDelete, authz.ClassResource(class.TeacherID, class.IsActive)); err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate class")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"is_active": class.IsActive})
	newPayload, _ := json.Marshal(map[string]interface{}{"is_active": false})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionClassDeactivate,
		Resource:   "classes",
		ResourceID: &class.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record class deactivate audit log", zap.Error(err))
	}

	return nil
}

// RotateCode replaces the class join code, invalidating the old one
// immediately. Useful when a code has leaked beyond the intended group.
func (s *ClassService) RotateCode(ctx context.Context, actor authz.Actor, id string, meta models.RequestMeta) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionUpdate, authz.ClassResource(class.TeacherID, class.IsActive)); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		code, err := joincode.Generate()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate join code")
		}

		err = s.repo.UpdateJoinCode(ctx, id, code)
		if err == nil {
			class.JoinCode = &code
			break
		}
		if repository.IsUniqueViolation(err) && attempt < maxJoinCodeAttempts-1 {
			s.logger.Debug("join code collision, redrawing", zap.Int("attempt", attempt+1))
			continue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate join code")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionCodeRotate,
		Resource:   "classes",
		ResourceID: &class.ID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record code rotation audit log", zap.Error(err))
	}

	return class, nil
}

// Roster lists the enrolled students of a class. Roster rows are
// enrollment data, so the enrollment read policy applies: the owning
// teacher or an admin.
func (s *ClassService) Roster(ctx context.Context, actor authz.Actor, id string) ([]models.RosterEntry, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.EnrollmentResource("", id)); err != nil {
		return nil, err
	}

	roster, err := s.repo.Roster(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}
