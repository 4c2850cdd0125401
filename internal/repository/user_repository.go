package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumnicode/engine/internal/models"
)

type UserRepository interface {
	BaseRepository[models.User]
	GetByClerkID(ctx context.Context, clerkID string, dest *models.User) error
	GetByEmail(ctx context.Context, email string, dest *models.User) error
	// EnsureByClerkID inserts u unless a row with the same clerk id exists, then loads that row into u.
	EnsureByClerkID(ctx context.Context, u *models.User) error
}

type userRepository struct {
	BaseRepository[models.User]
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{BaseRepository: NewBaseRepository[models.User](db, "user"), db: db}
}

func (r *userRepository) GetByClerkID(ctx context.Context, clerkID string, dest *models.User) error {
	if err := r.db.WithContext(ctx).Where("clerk_id = ?", clerkID).First(dest).Error; err != nil {
		return readError(err, "user not found", "get user by clerk id failed")
	}
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string, dest *models.User) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(dest).Error; err != nil {
		return readError(err, "user not found", "get user by email failed")
	}
	return nil
}

func (r *userRepository) EnsureByClerkID(ctx context.Context, u *models.User) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "clerk_id"}}, DoNothing: true}).
		Create(u).Error
	if err != nil {
		return writeError(err, "ensure user failed")
	}
	return r.GetByClerkID(ctx, u.ClerkID, u)
}
