package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// APIKey is a user-supplied provider credential. The secret itself is only
// stored sealed and never serialized.
type APIKey struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index:idx_api_keys_user_provider_name,unique" json:"user_id"`
	Provider           string         `gorm:"type:varchar(32);not null;index:idx_api_keys_user_provider_name,unique" json:"provider" validate:"required"`
	DisplayName        string         `gorm:"type:varchar(255);not null;index:idx_api_keys_user_provider_name,unique" json:"display_name"`
	EncryptedKey       string         `gorm:"type:text;not null" json:"-"`
	KeyHint            string         `gorm:"type:varchar(16)" json:"key_hint"`
	IsActive           bool           `gorm:"not null;default:true;index" json:"is_active"`
	IsValidated        bool           `gorm:"not null;default:false" json:"is_validated"`
	LastValidatedAt    *time.Time     `json:"last_validated_at,omitempty"`
	ValidationError    string         `gorm:"type:text" json:"validation_error,omitempty"`
	QuotaInfo          datatypes.JSON `gorm:"type:jsonb" json:"quota_info,omitempty"`
	LastUsedAt         *time.Time     `json:"last_used_at,omitempty"`
	UsageCount         int64          `gorm:"not null;default:0" json:"usage_count"`
	MonthlyLimit       *int64         `json:"monthly_limit,omitempty"`
	CurrentMonthUsage  int64          `gorm:"not null;default:0" json:"current_month_usage"`
	RateLimitPerMinute int            `gorm:"not null;default:60" json:"rate_limit_per_minute"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Exhausted reports whether the monthly limit, if any, has been reached.
func (k *APIKey) Exhausted() bool {
	return k.MonthlyLimit != nil && k.CurrentMonthUsage >= *k.MonthlyLimit
}

// UsageLog records one provider call.
type UsageLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	APIKeyID      *uuid.UUID `gorm:"type:uuid;index" json:"api_key_id,omitempty"`
	Provider      string     `gorm:"type:varchar(32);not null;index" json:"provider"`
	Model         string     `gorm:"type:varchar(128)" json:"model"`
	RequestType   string     `gorm:"type:varchar(32);not null" json:"request_type"`
	PromptChars   int        `gorm:"not null;default:0" json:"prompt_chars"`
	ResponseChars int        `gorm:"not null;default:0" json:"response_chars"`
	Success       bool       `gorm:"not null" json:"success"`
	Error         string     `gorm:"type:text" json:"error,omitempty"`
	DurationMS    int64      `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
}
