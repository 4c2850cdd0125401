package types

type ProjectCreateRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description"`
	TechStack   []string `json:"tech_stack" validate:"omitempty,max=20,dive,max=50"`
	ProjectType string   `json:"project_type" validate:"omitempty,max=50"`
	Template    string   `json:"template" validate:"omitempty,max=100"`
	IsPublic    bool     `json:"is_public"`
}

type ProjectUpdateRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	TechStack   []string `json:"tech_stack" validate:"omitempty,max=20,dive,max=50"`
	ProjectType *string  `json:"project_type" validate:"omitempty,max=50"`
	Status      *string  `json:"status" validate:"omitempty,oneof=active archived"`
	IsPublic    *bool    `json:"is_public"`
}

type SnapshotCreateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

type FileCreateRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=255"`
	Path      string `json:"path" validate:"required,max=1024"`
	Content   string `json:"content"`
	Language  string `json:"language" validate:"omitempty,max=50"`
}

type FileUpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Path     *string `json:"path" validate:"omitempty,min=1,max=1024"`
	Content  *string `json:"content"`
	Language *string `json:"language" validate:"omitempty,max=50"`
	Message  string  `json:"message" validate:"max=255"`
}

type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type AssistRequest struct {
	FileContent    string          `json:"file_content"`
	CursorPosition *CursorPosition `json:"cursor_position"`
	Prompt         string          `json:"prompt"`
	Language       string          `json:"language"`
}

type AssistResponse struct {
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

type APIKeyCreateRequest struct {
	Provider           string `json:"provider" validate:"required"`
	APIKey             string `json:"api_key" validate:"required,min=8"`
	DisplayName        string `json:"display_name" validate:"max=255"`
	MonthlyLimit       *int64 `json:"monthly_limit" validate:"omitempty,gte=1"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" validate:"omitempty,gte=1,lte=10000"`
}

type GenerateRequest struct {
	Prompt    string   `json:"prompt" validate:"required,max=10000"`
	TechStack []string `json:"tech_stack" validate:"omitempty,max=20,dive,max=50"`
}

type GenerateResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
