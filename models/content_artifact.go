package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ArtifactStatus tracks a ContentArtifact through the processing pipeline.
type ArtifactStatus string

const (
	ArtifactStatusQueued    ArtifactStatus = "queued"
	ArtifactStatusRunning   ArtifactStatus = "running"
	ArtifactStatusCompleted ArtifactStatus = "completed"
	ArtifactStatusFailed    ArtifactStatus = "failed"
	ArtifactStatusTimeout   ArtifactStatus = "timeout"
)

// ContentType is the classification the Gateway assigns to inbound content.
type ContentType string

const (
	ContentTypePDF    ContentType = "pdf"
	ContentTypeAudio  ContentType = "audio"
	ContentTypeURL    ContentType = "url"
	ContentTypeQuery  ContentType = "query"
	ContentTypeText   ContentType = "text"
	ContentTypeSocial ContentType = "social"
)

// ProcessingStep records one step of a processing agent's pipeline
// (extract, summarize, extract_entities, tag_content, ...).
type ProcessingStep struct {
	Step        string         `json:"step"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Status      ArtifactStatus `json:"status"`
	Output      string         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ProcessingStepList is a JSONB-backed slice of ProcessingStep.
type ProcessingStepList []ProcessingStep

func (s ProcessingStepList) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]ProcessingStep{})
	}
	return json.Marshal(s)
}

func (s *ProcessingStepList) Scan(value interface{}) error {
	if value == nil {
		*s = ProcessingStepList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			*s = ProcessingStepList{}
			return nil
		}
		bytes = []byte(strVal)
	}
	var steps []ProcessingStep
	if err := json.Unmarshal(bytes, &steps); err != nil {
		*s = ProcessingStepList{}
		return nil
	}
	*s = steps
	return nil
}

// ContentArtifact is the durable record of one piece of ingested content
// as it moves through classification, processing, and (optionally)
// digest assembly.
type ContentArtifact struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Source string    `json:"source" gorm:"not null"` // "email", "whatsapp", ...

	ContentType ContentType `json:"content_type" gorm:"type:varchar(50);not null;index"`
	TargetAgent AgentKind   `json:"target_agent" gorm:"type:varchar(50);not null"`

	RawBody     string         `json:"raw_body,omitempty" gorm:"type:text"`
	Attachments datatypes.JSON `json:"attachments,omitempty" gorm:"type:jsonb;default:'[]'"`

	Status ArtifactStatus `json:"status" gorm:"type:varchar(50);not null;default:'queued';index"`

	OutputData     datatypes.JSON      `json:"output_data,omitempty" gorm:"type:jsonb"`
	ProviderResult *ProviderResult     `json:"provider_result,omitempty" gorm:"type:jsonb"`
	ProcessingSteps ProcessingStepList `json:"processing_steps,omitempty" gorm:"type:jsonb;default:'[]'"`

	Tags     datatypes.JSON `json:"tags,omitempty" gorm:"type:jsonb;default:'[]'"`
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;default:'{}'"`

	ErrorMessage *string `json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:now();index"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null;default:now()"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (ContentArtifact) TableName() string {
	return "contentmind.content_artifacts"
}

// IngestRequest is what the Gateway receives from an inbound transport
// (email, WhatsApp, ...) before classification.
type IngestRequest struct {
	Source      string            `json:"source" validate:"required"`
	Body        string            `json:"body"`
	Subject     string            `json:"subject,omitempty"`
	Attachments []AttachmentRef   `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// AttachmentRef describes one attachment on an inbound message.
type AttachmentRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	URL         string `json:"url,omitempty"`
}

// ArtifactListFilter filters ContentArtifact queries, notably used by
// DigestAgent to gather everything accumulated since a job's last_run.
type ArtifactListFilter struct {
	ContentTypes []ContentType `json:"content_types"`
	Tags         []string      `json:"tags"`
	Since        *time.Time    `json:"since"`
	Until        *time.Time    `json:"until"`
	Status       *ArtifactStatus `json:"status"`
	Page         int           `json:"page"`
	Size         int           `json:"size"`
}

// ArtifactListResponse is the paginated response for artifact listing.
type ArtifactListResponse struct {
	Artifacts []ContentArtifact `json:"artifacts"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	Size      int               `json:"size"`
}
