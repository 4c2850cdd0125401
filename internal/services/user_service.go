package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
)

// Identity is the subset of identity-provider claims used to create a local user.
type Identity struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

type UserService interface {
	// EnsureUser returns the local user for id, creating it on first sight.
	EnsureUser(ctx context.Context, id Identity) (*models.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

var _ UserService = (*userService)(nil)

func (s *userService) EnsureUser(ctx context.Context, id Identity) (*models.User, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return nil, appErr.New(appErr.CodeUnauthorized, "token has no subject")
	}

	var u models.User
	err := s.userRepo.GetByClerkID(ctx, id.Subject, &u)
	if err == nil {
		return &u, nil
	}
	if !appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, err
	}

	email := strings.TrimSpace(id.Email)
	if email == "" {
		email = id.Subject + "@clerk.local"
	}
	u = models.User{
		ClerkID:   id.Subject,
		Email:     email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
	}
	if err := s.userRepo.EnsureByClerkID(ctx, &u); err != nil {
		return nil, err
	}
	logger.L().Info("user provisioned", zap.String("user_id", u.ID.String()), zap.String("clerk_id", u.ClerkID))
	return &u, nil
}

func (s *userService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.userRepo.GetByID(ctx, userID, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
