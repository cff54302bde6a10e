package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the identity-provider token payload. The token
// carries who the caller is, never what they may do; the caller's role is
// resolved server-side on every request.
type JWTClaims struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// TokenResponse returns a minted token for development and test use.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Identity describes the resolved caller in responses.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// RequestMeta carries request source details into audit writes.
type RequestMeta struct {
	IP        string
	UserAgent string
}
