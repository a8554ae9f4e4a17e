package services

import (
	"context"
	"time"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/pkg/promptgrammar"
	"github.com/google/uuid"
)

// ComponentService manages PromptComponents: create, update, render,
// validate, version, and test.
type ComponentService interface {
	Create(ctx context.Context, req models.CreateComponentRequest) (*models.PromptComponent, error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateComponentRequest) (*models.PromptComponent, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PromptComponent, error)
	GetByName(ctx context.Context, name string) (*models.PromptComponent, error)
	List(ctx context.Context, filter models.ComponentListFilter) (*models.ComponentListResponse, error)
	Delete(ctx context.Context, id uuid.UUID) (archivedVersionID uuid.UUID, err error)
	Duplicate(ctx context.Context, id uuid.UUID, newName string) (*models.PromptComponent, error)

	Render(ctx context.Context, id uuid.UUID, inputs map[string]string) (string, error)
	Validate(ctx context.Context, template string) (promptgrammar.ValidationResult, error)

	Versions(ctx context.Context, id uuid.UUID) ([]models.ComponentVersion, error)
	GetVersion(ctx context.Context, id uuid.UUID, version string) (*models.ComponentVersion, error)
	Compare(ctx context.Context, id uuid.UUID, fromVersion, toVersion string) (*models.ComponentDiff, error)

	Export(ctx context.Context, id uuid.UUID) ([]byte, error)
	Import(ctx context.Context, data []byte, overwrite bool) (*models.PromptComponent, error)

	TestRender(ctx context.Context, id uuid.UUID, inputs map[string]string) (*models.ComponentTestResult, error)
	TestWithProvider(ctx context.Context, id uuid.UUID, inputs map[string]string, task string) (*models.ComponentTestResult, error)
	CompareTestResults(ctx context.Context, resultID1, resultID2 uuid.UUID) (*TestResultDiff, error)
}

// TestResultDiff is the pairwise comparison of two component test runs.
type TestResultDiff struct {
	Result1        uuid.UUID `json:"result1"`
	Result2        uuid.UUID `json:"result2"`
	RenderedSame   bool      `json:"rendered_same"`
	ProviderOutSame bool     `json:"provider_output_same"`
}

// RouterService implements the Model Router: routing policy, cascading
// timeouts, cooperative cancellation, and deterministic fallback.
type RouterService interface {
	Route(ctx context.Context, req models.RouteRequest) (*models.ProviderResult, error)
	IsLocalAvailable(ctx context.Context) bool
	AssessComplexity(task string) float64
}

// AgentRegistry discovers, configures, and instantiates processing
// agents. Discovery is manifest-based, never reflection-based.
type AgentRegistry interface {
	Register(ctx context.Context, req models.RegisterAgentRequest) (*models.AgentDescriptor, error)
	Discover(manifest []AgentManifestEntry) error
	Create(ctx context.Context, name string) (ProcessingAgent, error)
	Get(ctx context.Context, name string) (*models.AgentDescriptor, error)
	List(ctx context.Context, filter models.AgentListFilter) (*models.AgentListResponse, error)
	Instances() []string
	Capabilities(ctx context.Context) ([]models.AgentCapabilities, error)
	Deregister(ctx context.Context, name string) error
}

// AgentFactory constructs a live ProcessingAgent instance from its
// stored configuration. Registered once per agent kind at wiring time.
type AgentFactory func(config models.AgentConfig, router RouterService, components ComponentService) (ProcessingAgent, error)

// AgentManifestEntry binds an agent kind to its factory, replacing
// reflection-based discovery with an explicit, testable manifest.
type AgentManifestEntry struct {
	Kind    models.AgentKind
	Name    string
	Factory AgentFactory
}

// ProcessingAgent processes one ContentArtifact end to end.
type ProcessingAgent interface {
	Process(ctx context.Context, artifact *models.ContentArtifact) (*models.ContentArtifact, error)
	Capabilities() models.AgentCapabilities
}

// GatewayService classifies inbound content and routes it to a target
// agent, recording the result as a ContentArtifact.
type GatewayService interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.ContentArtifact, error)
	Classify(req models.IngestRequest) (models.ContentType, models.AgentKind)
}

// ArtifactStore is the durable archive of ContentArtifacts.
type ArtifactStore interface {
	Save(ctx context.Context, artifact *models.ContentArtifact) error
	Get(ctx context.Context, id uuid.UUID) (*models.ContentArtifact, error)
	List(ctx context.Context, filter models.ArtifactListFilter) (*models.ArtifactListResponse, error)
	Since(ctx context.Context, since time.Time, filter models.DigestFilter) ([]models.ContentArtifact, error)
}

// SchedulerService is the durable, single-node cron-like job engine.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context, grace time.Duration) error

	RegisterCallback(name string, fn SchedulerCallback)
	RegisterDefaultCallback(fn SchedulerCallback)

	Schedule(ctx context.Context, req models.CreateScheduledJobRequest) (*models.ScheduledJob, error)
	UpdateJob(ctx context.Context, id uuid.UUID, req models.UpdateScheduledJobRequest) (*models.ScheduledJob, error)
	CancelJob(ctx context.Context, id uuid.UUID) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ScheduledJob, error)
	ListJobs(ctx context.Context, activeOnly bool) ([]models.ScheduledJob, error)
}

// SchedulerCallback is invoked when a ScheduledJob comes due. Its error
// is logged but never blocks last_run/next_run advancement.
type SchedulerCallback func(ctx context.Context, job models.ScheduledJob) error

// DeliverySender delivers a rendered digest to its destination (email,
// WhatsApp, ...). Fire-and-forget; duplicates are not suppressed.
type DeliverySender interface {
	Send(ctx context.Context, destination, subject, body string) error
}
