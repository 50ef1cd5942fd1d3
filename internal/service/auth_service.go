package service

import (
	"context"
	"fmt"
	"time"

	"fieldops/internal/model"
	"fieldops/internal/repository"
	"fieldops/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenTTL = 24 * time.Hour

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// AuthService authenticates credentials and mints the JWTs the middleware
// consumes. Claims: "sub" user id, "company" tenant id, "role" coarse role,
// and "imp" session id on impersonation tokens.
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	IssueImpersonationToken(session *model.ImpersonationSession) (*TokenResponse, error)
}

type authService struct {
	users  repository.UserRepository
	secret []byte
}

func NewAuthService(users repository.UserRepository, secret []byte) AuthService {
	return &authService{users: users, secret: secret}
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.AuthenticationRequired("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.AuthenticationRequired("invalid email or password")
	}

	expiresAt := time.Now().Add(accessTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID.String(),
		"company": user.CompanyID.String(),
		"role":    user.Role,
		"exp":     expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

// IssueImpersonationToken mints a token bound to the session. The subject
// stays the operator; the middleware re-attributes each request to the
// target user after touching the session.
func (s *authService) IssueImpersonationToken(session *model.ImpersonationSession) (*TokenResponse, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": session.OperatorID.String(),
		"imp": session.ID.String(),
		"exp": session.ExpiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign impersonation token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	}, nil
}
