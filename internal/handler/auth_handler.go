package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/service"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
	"github.com/edukita/classtrack-api/pkg/response"
)

// AuthHandler exposes registration and the development token mint.
type AuthHandler struct {
	profiles *service.ProfileService
	tokens   *service.TokenService
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(profiles *service.ProfileService, tokens *service.TokenService) *AuthHandler {
	return &AuthHandler{profiles: profiles, tokens: tokens}
}

// Register godoc
// @Summary Register the caller as a student
// @Description Creates a student profile for the authenticated subject
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	profile, err := h.profiles.Register(c.Request.Context(), actor, claims, req, metaFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// Token godoc
// @Summary Mint a development token
// @Description Issues an HS256 token for local development and tests
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body handler.devTokenRequest true "Token payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}

	token, err := h.tokens.Issue(req.Subject, req.Email, req.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

type devTokenRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
