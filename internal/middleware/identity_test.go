package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/service"
	"github.com/edukita/classtrack-api/pkg/config"
)

type fakeRoleResolver struct {
	role    models.Role
	err     error
	lookups []string
}

func (f *fakeRoleResolver) RoleOf(_ context.Context, id string) (models.Role, error) {
	f.lookups = append(f.lookups, id)
	return f.role, f.err
}

func identityRouter(tokens *service.TokenService, roles roleResolver, captured *authz.Actor) *gin.Engine {
	router := gin.New()
	router.Use(Identity(tokens, roles))
	router.GET("/", func(c *gin.Context) {
		if actor, ok := CurrentActor(c); ok {
			*captured = actor
		}
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestIdentityResolvesActorFromProfileStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, nil)
	resolver := &fakeRoleResolver{role: models.RoleTeacher}

	minted, err := tokens.Issue("t1", "t1@school.test", "Rui Costa")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var actor authz.Actor
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+minted.AccessToken)
	identityRouter(tokens, resolver, &actor).ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if actor.ID != "t1" || actor.Role != models.RoleTeacher {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if len(resolver.lookups) != 1 || resolver.lookups[0] != "t1" {
		t.Fatalf("expected one role lookup for the token subject, got %v", resolver.lookups)
	}
}

func TestIdentityUnregisteredSubjectGetsEmptyRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, nil)
	resolver := &fakeRoleResolver{err: sql.ErrNoRows}

	minted, err := tokens.Issue("new-subject", "new@school.test", "New Caller")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var actor authz.Actor
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+minted.AccessToken)
	identityRouter(tokens, resolver, &actor).ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unregistered callers must pass through, got %d", recorder.Code)
	}
	if actor.ID != "new-subject" || actor.Role != "" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestIdentityRejectsMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, nil)

	var actor authz.Actor
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identityRouter(tokens, &fakeRoleResolver{}, &actor).ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if actor.ID != "" {
		t.Fatalf("handler must not run without identity")
	}
}

func TestIdentityRejectsNonBearerScheme(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	var actor authz.Actor
	identityRouter(tokens, &fakeRoleResolver{}, &actor).ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestIdentityRejectsForgedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, nil)
	forger := service.NewTokenService(config.JWTConfig{Secret: "other-secret", Expiration: time.Hour}, nil)
	resolver := &fakeRoleResolver{role: models.RoleAdmin}

	minted, err := forger.Issue("intruder", "x@school.test", "X")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+minted.AccessToken)
	var actor authz.Actor
	identityRouter(tokens, resolver, &actor).ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if len(resolver.lookups) != 0 {
		t.Fatalf("role must not be resolved for an invalid token")
	}
}

func TestIdentityFailsClosedOnResolverError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, nil)
	resolver := &fakeRoleResolver{err: errors.New("connection refused")}

	minted, err := tokens.Issue("s1", "s1@school.test", "Ana Silva")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+minted.AccessToken)
	var actor authz.Actor
	identityRouter(tokens, resolver, &actor).ServeHTTP(recorder, req)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("resolver failures must not grant access, got %d", recorder.Code)
	}
	if actor.ID != "" {
		t.Fatalf("handler must not run when role resolution fails")
	}
}
