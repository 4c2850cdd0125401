package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

// Project is a user-owned container of files.
type Project struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID      uuid.UUID                   `gorm:"type:uuid;index;not null" json:"owner_id" validate:"required"`
	Name         string                      `gorm:"type:varchar(255);not null" json:"name" validate:"required,max=255"`
	Description  string                      `gorm:"type:text" json:"description"`
	TechStack    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tech_stack"`
	ProjectType  string                      `gorm:"type:varchar(50);not null;default:web" json:"project_type"`
	Template     string                      `gorm:"type:varchar(100)" json:"template,omitempty"`
	Status       string                      `gorm:"type:varchar(32);not null;default:active;index" json:"status" validate:"oneof=active archived"`
	IsPublic     bool                        `gorm:"not null;default:false" json:"is_public"`
	LastOpenedAt *time.Time                  `json:"last_opened_at,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
	DeletedAt    gorm.DeletedAt              `gorm:"index" json:"-"`
}
