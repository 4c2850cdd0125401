package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectSnapshot is a named copy of every file of a project at one point in time.
type ProjectSnapshot struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	FileCount   int            `gorm:"not null;default:0" json:"file_count"`
	Files       []SnapshotFile `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE" json:"files,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type SnapshotFile struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SnapshotID uuid.UUID `gorm:"type:uuid;not null;index" json:"snapshot_id"`
	Path       string    `gorm:"type:varchar(1024);not null" json:"path"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Language   string    `gorm:"type:varchar(50);not null" json:"language"`
}
