package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

// authorizer is the policy engine surface services depend on. Every
// operation passes one (actor, action, resource) tuple through it before
// touching storage.
type authorizer interface {
	Authorize(ctx context.Context, actor authz.Actor, action authz.Action, res authz.Resource) error
}

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ProfileService coordinates profile registration and management.
type ProfileService struct {
	repo      profileRepository
	engine    authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs a ProfileService.
func NewProfileService(repo profileRepository, engine authorizer, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, engine: engine, validator: validate, logger: logger}
}

// Register creates the caller's own profile after first sign-in. The
// subject arrives without a role; registration is what gives it one, and
// self-registration only ever yields a student.
func (s *ProfileService) Register(ctx context.Context, actor authz.Actor, claims *models.JWTClaims, req models.RegisterRequest, meta models.RequestMeta) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.ProfileCreation(actor.ID, models.RoleStudent)); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByID(ctx, actor.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "profile already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing profile")
	}

	profile := &models.Profile{
		ID:        actor.ID,
		Email:     claims.Email,
		Role:      models.RoleStudent,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	}

	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"email": profile.Email, "role": profile.Role})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &profile.ID,
		Action:     models.AuditActionProfileCreate,
		Resource:   "profiles",
		ResourceID: &profile.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.Error(err))
	}

	return profile, nil
}

// Create provisions a profile for any role. Only admins pass the policy
// check; the ID must be the subject key the identity provider will present.
func (s *ProfileService) Create(ctx context.Context, actor authz.Actor, req models.CreateProfileRequest, meta models.RequestMeta) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create profile payload")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.ProfileCreation(req.ID, req.Role)); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	profile := &models.Profile{
		ID:        req.ID,
		Email:     req.Email,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	}

	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"email": profile.Email, "role": profile.Role})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionProfileCreate,
		Resource:   "profiles",
		ResourceID: &profile.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record profile create audit log", zap.Error(err))
	}

	return profile, nil
}

// Get returns one profile under the read policy: self, admin, or a
// teacher with the student enrolled in one of their classes.
func (s *ProfileService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Profile, error) {
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.ProfileResource(id)); err != nil {
		return nil, err
	}

	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Me returns the caller's own profile.
func (s *ProfileService) Me(ctx context.Context, actor authz.Actor) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// List returns profiles with pagination metadata. The empty target only
// matches the admin rule, which makes listing an admin operation.
func (s *ProfileService) List(ctx context.Context, actor authz.Actor, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error) {
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.ProfileResource("")); err != nil {
		return nil, nil, err
	}

	profiles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return profiles, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update mutates profile fields. The role never changes here: requests
// carry no role field and the repository statement omits the column.
func (s *ProfileService) Update(ctx context.Context, actor authz.Actor, id string, req models.UpdateProfileRequest, meta models.RequestMeta) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionUpdate, authz.ProfileResource(id)); err != nil {
		return nil, err
	}

	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"first_name": profile.FirstName, "last_name": profile.LastName})

	if req.FirstName != nil {
		profile.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		profile.LastName = *req.LastName
	}
	if req.Phone != nil {
		profile.Phone = req.Phone
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = req.AvatarURL
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"first_name": profile.FirstName, "last_name": profile.LastName})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionProfileUpdate,
		Resource:   "profiles",
		ResourceID: &profile.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record profile update audit log", zap.Error(err))
	}

	return profile, nil
}

// Delete removes a profile row entirely.
func (s *ProfileService) Delete(ctx context.Context, actor authz.Actor, id string, meta models.RequestMeta) error {
	if err := s.engine.Authorize(ctx, actor, authz.ActionDelete, authz.ProfileResource(id)); err != nil {
		return err
	}

	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete profile")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"email": profile.Email, "role": profile.Role})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &actor.ID,
		Action:     models.AuditActionProfileDelete,
		Resource:   "profiles",
		ResourceID: &profile.ID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record profile delete audit log", zap.Error(err))
	}

	return nil
}
