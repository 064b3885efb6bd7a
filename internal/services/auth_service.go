package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalcayman/netbank/internal/infrastructure/redis"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/repository"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type AuthService interface {
	Register(ctx context.Context, email, password, fullName string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type authService struct {
	profiles    repository.ProfileRepository
	redisClient redis.RedisClient
	jwtSecret   string
}

func NewAuthService(profiles repository.ProfileRepository, redisClient redis.RedisClient, jwtSecret string) *authService {
	return &authService{
		profiles:    profiles,
		redisClient: redisClient,
		jwtSecret:   jwtSecret,
	}
}

func (s *authService) Register(ctx context.Context, email, password, fullName string) (string, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if email == "" || password == "" {
		span.SetStatus(codes.Error, "empty email or password")
		return "", pkgerrors.ErrInvalidInput
	}

	existing, err := s.profiles.GetByEmail(ctx, email)
	if existing != nil {
		span.SetStatus(codes.Error, "email already registered")
		slog.Warn("email already registered", "email", email, "existing_id", existing.ID)
		return "", pkgerrors.ErrEmailExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		slog.Error("failed to check profile existence", "email", email, "error", err)
		return "", fmt.Errorf("failed to check profile existence: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to hash password", "email", email, "error", err)
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	profile := &models.Profile{
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		span.RecordError(err)
		slog.Error("failed to create profile", "email", email, "error", err)
		return "", fmt.Errorf("failed to create profile: %w", err)
	}

	slog.Info("user registered", "user_id", profile.ID, "email", email)
	return profile.ID, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	profile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to login", "email", email, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "email", email)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  profile.ID,
		"is_admin": profile.IsAdmin,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redisClient.Set(ctx, fmt.Sprintf("user:%s:token", profile.ID), tokenString, time.Hour); err != nil {
		slog.Error("failed to cache JWT", "user_id", profile.ID, "error", err)
	}

	slog.Info("user logged in", "email", email, "user_id", profile.ID)
	return tokenString, nil
}
