package client

import "time"

type User struct {
	ID        string `json:"id"`
	ClerkID   string `json:"clerk_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Project struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	TechStack    []string   `json:"tech_stack"`
	ProjectType  string     `json:"project_type"`
	Template     string     `json:"template,omitempty"`
	Status       string     `json:"status"`
	IsPublic     bool       `json:"is_public"`
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type CreateProjectInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TechStack   []string `json:"tech_stack,omitempty"`
	ProjectType string   `json:"project_type,omitempty"`
	Template    string   `json:"template,omitempty"`
	IsPublic    bool     `json:"is_public"`
}

// UpdateProjectInput sends only the non-nil fields.
type UpdateProjectInput struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	TechStack   []string `json:"tech_stack,omitempty"`
	Status      *string  `json:"status,omitempty"`
	IsPublic    *bool    `json:"is_public,omitempty"`
}

type ListProjectsOptions struct {
	Page     int
	PageSize int
	Status   string
	Search   string
}

type Page struct {
	Page     int   `json:"page,omitempty"`
	PageSize int   `json:"page_size,omitempty"`
	Total    int64 `json:"total,omitempty"`
}

type Snapshot struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FileCount   int       `json:"file_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type File struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateFileInput struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Language  string `json:"language,omitempty"`
}

type UpdateFileInput struct {
	Name     *string `json:"name,omitempty"`
	Path     *string `json:"path,omitempty"`
	Content  *string `json:"content,omitempty"`
	Language *string `json:"language,omitempty"`
	Message  string  `json:"message,omitempty"`
}

type FileVersion struct {
	ID        string    `json:"id"`
	FileID    string    `json:"file_id"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	Checksum  string    `json:"checksum"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type AssistInput struct {
	FileContent    string  `json:"file_content"`
	CursorPosition *Cursor `json:"cursor_position,omitempty"`
	Prompt         string  `json:"prompt"`
	Language       string  `json:"language"`
}

type Suggestion struct {
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

type APIKey struct {
	ID                string     `json:"id"`
	Provider          string     `json:"provider"`
	DisplayName       string     `json:"display_name"`
	KeyHint           string     `json:"key_hint"`
	IsActive          bool       `json:"is_active"`
	IsValidated       bool       `json:"is_validated"`
	ValidationError   string     `json:"validation_error,omitempty"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	UsageCount        int64      `json:"usage_count"`
	MonthlyLimit      *int64     `json:"monthly_limit,omitempty"`
	CurrentMonthUsage int64      `json:"current_month_usage"`
}

type AddAPIKeyInput struct {
	Provider           string `json:"provider"`
	APIKey             string `json:"api_key"`
	DisplayName        string `json:"display_name,omitempty"`
	MonthlyLimit       *int64 `json:"monthly_limit,omitempty"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute,omitempty"`
}

type Provider struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	DefaultModel string `json:"default_model"`
	KeyURL       string `json:"key_url"`
}

type Session struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Prompt         string     `json:"prompt"`
	TechStack      []string   `json:"tech_stack"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	CurrentTask    string     `json:"current_task"`
	CurrentFile    string     `json:"current_file,omitempty"`
	TotalFiles     int        `json:"total_files"`
	CompletedFiles int        `json:"completed_files"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

type GenerateResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
