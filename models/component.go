package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PromptComponent is a versioned, reusable prompt template with a
// placeholder grammar ({name} required, {name:optional} optional).
type PromptComponent struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string         `json:"name" gorm:"uniqueIndex;not null"`
	Description string         `json:"description"`
	Template    string         `json:"template" gorm:"type:text;not null"`
	Version     string         `json:"version" gorm:"not null;default:'1.0.0'"`

	RequiredInputs datatypes.JSON `json:"required_inputs" gorm:"type:jsonb;default:'[]'"`
	OptionalInputs datatypes.JSON `json:"optional_inputs" gorm:"type:jsonb;default:'[]'"`
	Outputs        datatypes.JSON `json:"outputs" gorm:"type:jsonb;default:'[]'"`
	Tags           datatypes.JSON `json:"tags" gorm:"type:jsonb;default:'[]'"`
	Metadata       datatypes.JSON `json:"metadata" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null;default:now()"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (PromptComponent) TableName() string {
	return "contentmind.prompt_components"
}

// ComponentVersion is an append-only snapshot taken immediately before a
// component is overwritten, so history is never lost on update.
type ComponentVersion struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ComponentID uuid.UUID      `json:"component_id" gorm:"type:uuid;not null;index"`
	Version     string         `json:"version" gorm:"not null"`
	Snapshot    datatypes.JSON `json:"snapshot" gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:now()"`
}

func (ComponentVersion) TableName() string {
	return "contentmind.component_versions"
}

// ComponentTestResult records one invocation of the test harness
// (test_render or test_with_llm) against a component.
type ComponentTestResult struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ComponentID uuid.UUID      `json:"component_id" gorm:"type:uuid;not null;index"`
	Mode        string         `json:"mode" gorm:"not null"` // "render" or "llm"
	Inputs      datatypes.JSON `json:"inputs" gorm:"type:jsonb"`
	Rendered    string         `json:"rendered" gorm:"type:text"`
	ProviderOut string         `json:"provider_output,omitempty" gorm:"type:text"`
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	TokenUsage  int            `json:"token_usage,omitempty"`
	DurationMs  int            `json:"duration_ms"`
	Errors      datatypes.JSON `json:"errors" gorm:"type:jsonb;default:'[]'"`
	Warnings    datatypes.JSON `json:"warnings" gorm:"type:jsonb;default:'[]'"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:now()"`
}

func (ComponentTestResult) TableName() string {
	return "contentmind.component_test_results"
}

// CreateComponentRequest is the request to create a new component.
type CreateComponentRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Description string   `json:"description" validate:"max=1000"`
	Template    string   `json:"template" validate:"required"`
	Tags        []string `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// UpdateComponentRequest is the request to update an existing component.
// IncrementVersion defaults to true.
type UpdateComponentRequest struct {
	Name             *string                `json:"name,omitempty"`
	Description      *string                `json:"description,omitempty"`
	Template         *string                `json:"template,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	IncrementVersion *bool                  `json:"increment_version,omitempty"`
}

// ComponentListFilter defines filter criteria for listing components. The
// Expr field, when set, is evaluated against each candidate component via
// the expr-lang engine (e.g. `"len(Tags) > 0 && \"digest\" in Tags"`).
type ComponentListFilter struct {
	Tags   []string `json:"tags"`
	Search string   `json:"search"`
	Expr   string   `json:"expr"`
	Page   int      `json:"page"`
	Size   int      `json:"size"`
}

// ComponentListResponse is the paginated response for component listing.
type ComponentListResponse struct {
	Components []PromptComponent `json:"components"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Size       int               `json:"size"`
}

// ComponentDiff describes the field-level difference between two versions
// of a component, returned by Compare.
type ComponentDiff struct {
	ComponentID  uuid.UUID `json:"component_id"`
	FromVersion  string    `json:"from_version"`
	ToVersion    string    `json:"to_version"`
	NameChanged  bool      `json:"name_changed"`
	DescChanged  bool      `json:"description_changed"`
	TemplChanged bool      `json:"template_changed"`
	TagsChanged  bool      `json:"tags_changed"`
	MetaChanged  bool      `json:"metadata_changed"`
}
