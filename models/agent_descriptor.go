package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

// AgentKind distinguishes the processing agents defined in this system.
type AgentKind string

const (
	AgentStatusRegistered AgentStatus = "registered"
	AgentStatusActive     AgentStatus = "active"
	AgentStatusDisabled   AgentStatus = "disabled"

	AgentKindContentMind AgentKind = "contentmind"
	AgentKindResearcher  AgentKind = "researcher"
	AgentKindDigest      AgentKind = "digest"
	AgentKindGateway     AgentKind = "gateway"
)

// RetryConfig defines retry behavior for a provider call.
type RetryConfig struct {
	MaxAttempts     int      `json:"max_attempts"`
	BackoffType     string   `json:"backoff_type,omitempty"` // "exponential" or "linear"
	BaseDelay       string   `json:"base_delay,omitempty"`
	MaxDelay        string   `json:"max_delay,omitempty"`
	RetryableErrors []string `json:"retryable_errors,omitempty"`
}

// FallbackConfig defines automatic fallback to an alternative provider
// when the preferred one is unavailable or fails.
type FallbackConfig struct {
	Enabled        bool     `json:"enabled"`
	PreferredChain []string `json:"preferred_chain,omitempty"`
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		BackoffType:     "exponential",
		BaseDelay:       "1s",
		MaxDelay:        "30s",
		RetryableErrors: []string{"timeout", "connection", "unavailable", "rate_limit"},
	}
}

func DefaultFallbackConfig() *FallbackConfig {
	return &FallbackConfig{
		Enabled:        true,
		PreferredChain: []string{"local", "cloud_primary", "cloud_secondary"},
	}
}

// AgentConfig is the per-agent configuration stored alongside its
// registry entry: which tools it exposes, its default routing task, and
// the retry/fallback policy the Router should apply on its behalf.
type AgentConfig struct {
	DefaultTask      string          `json:"default_task,omitempty"`
	Tools            []string        `json:"tools,omitempty"`
	RetryConfig      *RetryConfig    `json:"retry_config,omitempty"`
	FallbackConfig   *FallbackConfig `json:"fallback_config,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

func (c AgentConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *AgentConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), c)
	}
	return json.Unmarshal(bytes, c)
}

// AgentDescriptor is a durable registry entry: the factory-level
// identity of an agent kind plus its stored configuration. The live,
// constructed instance is never persisted, only the descriptor is.
type AgentDescriptor struct {
	ID      uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name    string      `json:"name" gorm:"uniqueIndex;not null"`
	Kind    AgentKind   `json:"kind" gorm:"type:varchar(50);not null"`
	Status  AgentStatus `json:"status" gorm:"type:varchar(50);not null;default:'registered'"`
	Version string      `json:"version" gorm:"not null;default:'1.0.0'"`

	Config AgentConfig `json:"config" gorm:"type:jsonb;not null"`

	Tags datatypes.JSON `json:"tags" gorm:"type:jsonb;default:'[]'"`

	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null;default:now()"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (AgentDescriptor) TableName() string {
	return "contentmind.agent_descriptors"
}

// RegisterAgentRequest is the request to register a new agent kind.
type RegisterAgentRequest struct {
	Name    string      `json:"name" validate:"required,min=1,max=255"`
	Kind    AgentKind   `json:"kind" validate:"required"`
	Version string      `json:"version,omitempty"`
	Config  AgentConfig `json:"config"`
	Tags    []string    `json:"tags"`
}

// AgentListFilter defines filter criteria for listing registered agents.
type AgentListFilter struct {
	Kind   *AgentKind   `json:"kind"`
	Status *AgentStatus `json:"status"`
	Tags   []string     `json:"tags"`
	Search string       `json:"search"`
	Page   int          `json:"page"`
	Size   int          `json:"size"`
}

// AgentListResponse is the paginated response for agent listing.
type AgentListResponse struct {
	Agents []AgentDescriptor `json:"agents"`
	Total  int64             `json:"total"`
	Page   int               `json:"page"`
	Size   int               `json:"size"`
}

// AgentCapabilities describes what a registered agent can do, for
// discovery UIs.
type AgentCapabilities struct {
	Name  string   `json:"name"`
	Kind  AgentKind `json:"kind"`
	Tools []string `json:"tools"`
}
