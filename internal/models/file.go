package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// File is one source file of a project. (project_id, path) is unique among live rows.
type File struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id" validate:"required"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Path      string         `gorm:"type:varchar(1024);not null" json:"path" validate:"required"`
	Content   string         `gorm:"type:text;not null;default:''" json:"content"`
	Language  string         `gorm:"type:varchar(50);not null;default:text" json:"language"`
	Checksum  string         `gorm:"type:char(64)" json:"checksum"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// FileVersion keeps the history of a file's content.
type FileVersion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FileID    uuid.UUID `gorm:"type:uuid;not null;index:idx_file_versions_file_version,unique" json:"file_id"`
	Version   int       `gorm:"not null;index:idx_file_versions_file_version,unique" json:"version" validate:"gte=1"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Checksum  string    `gorm:"type:char(64)" json:"checksum"`
	Message   string    `gorm:"type:varchar(255)" json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
