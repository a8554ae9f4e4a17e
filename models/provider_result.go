package models

import (
	"database/sql/driver"
	"encoding/json"
)

// ProviderResult is the normalized outcome of a Router call, regardless of
// which provider (local or cloud) actually served it.
type ProviderResult struct {
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Text           string         `json:"text"`
	TokenUsage     int            `json:"token_usage"`
	CostUSD        float64        `json:"cost_usd"`
	ResponseTimeMs int            `json:"response_time_ms"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
	Simplified     bool           `json:"simplified"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (r ProviderResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ProviderResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), r)
	}
	return json.Unmarshal(bytes, r)
}

// RouteRequest is the input to Router.Route: the task to execute and the
// hints that influence the routing policy.
type RouteRequest struct {
	Task             string         `json:"task" validate:"required"`
	Prompt           string         `json:"prompt" validate:"required"`
	SystemPrompt     string         `json:"system_prompt,omitempty"`
	ComponentID      string         `json:"component_id,omitempty"`
	ComponentInputs  map[string]string `json:"component_inputs,omitempty"`
	Provider         string         `json:"provider,omitempty"` // explicit override
	ModelPreference  string         `json:"model_preference,omitempty"` // "local" forces local-first
	Model            string         `json:"model,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	GlobalTimeoutMs  int            `json:"global_timeout_ms,omitempty"`
}
