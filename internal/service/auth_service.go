package service

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// AuthService authenticates ops API operators.
type AuthService struct {
	operators repository.OperatorRepository
	tokens    *auth.TokenManager
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, operators repository.OperatorRepository) *AuthService {
	return &AuthService{
		operators: operators,
		tokens:    auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// LoginResult carries the issued token.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
}

// Login verifies credentials and issues a JWT.
func (s *AuthService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	operator, err := s.operators.GetByLogin(ctx, login)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if operator == nil || !operator.Active {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(operator.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(operator.ID, operator.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}
