package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User mirrors an identity-provider account. Rows are created on the first
// authenticated request carrying an unknown clerk id.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ClerkID   string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"clerk_id" validate:"required"`
	Email     string         `gorm:"type:varchar(320);index;not null" json:"email" validate:"required,email"`
	FirstName string         `gorm:"type:varchar(128)" json:"first_name"`
	LastName  string         `gorm:"type:varchar(128)" json:"last_name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// DisplayName joins first and last name, falling back to the email.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
