package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SessionRunning   = "running"
	SessionPaused    = "paused"
	SessionStopped   = "stopped"
	SessionCompleted = "completed"
	SessionError     = "error"
)

// GenerationSession is one AI build request for a project.
type GenerationSession struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID      uuid.UUID                   `gorm:"type:uuid;not null;index" json:"project_id"`
	UserID         uuid.UUID                   `gorm:"type:uuid;not null;index" json:"user_id"`
	Prompt         string                      `gorm:"type:text;not null" json:"prompt"`
	TechStack      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tech_stack"`
	Status         string                      `gorm:"type:varchar(16);not null;index" json:"status" validate:"oneof=running paused stopped completed error"`
	Progress       int                         `gorm:"not null;default:0" json:"progress"`
	CurrentTask    string                      `gorm:"type:varchar(255)" json:"current_task"`
	CurrentFile    string                      `gorm:"type:varchar(1024)" json:"current_file,omitempty"`
	TotalFiles     int                         `gorm:"not null;default:0" json:"total_files"`
	CompletedFiles int                         `gorm:"not null;default:0" json:"completed_files"`
	Error          string                      `gorm:"type:text" json:"error,omitempty"`
	StartedAt      time.Time                   `json:"started_at"`
	FinishedAt     *time.Time                  `json:"finished_at,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// Active sessions block new ones for the same project.
func (s *GenerationSession) Active() bool {
	return s.Status == SessionRunning || s.Status == SessionPaused
}

// Terminal statuses never change again.
func IsTerminalSession(status string) bool {
	return status == SessionStopped || status == SessionCompleted || status == SessionError
}

var sessionTransitions = map[string][]string{
	SessionRunning: {SessionPaused, SessionStopped, SessionCompleted, SessionError},
	SessionPaused:  {SessionRunning, SessionStopped, SessionError},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
