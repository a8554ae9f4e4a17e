package impl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// agentRegistryImpl is a manifest-based agent registry: agent kinds are
// discovered by registering explicit AgentManifestEntry values, never by
// reflection over a package. It keeps the factory/config/instance
// separation a manifest-based registry needs: factories (how to build a
// kind) and live instances (constructed lazily, never persisted) in two
// in-memory maps, and descriptors (the persisted config) in the database.
type agentRegistryImpl struct {
	db     *gorm.DB
	router services.RouterService
	comps  services.ComponentService

	mu        sync.RWMutex
	factories map[models.AgentKind]services.AgentFactory
	instances map[string]services.ProcessingAgent
}

func NewAgentRegistry(db *gorm.DB, router services.RouterService, comps services.ComponentService) services.AgentRegistry {
	return &agentRegistryImpl{
		db:        db,
		router:    router,
		comps:     comps,
		factories: make(map[models.AgentKind]services.AgentFactory),
		instances: make(map[string]services.ProcessingAgent),
	}
}

// Discover registers the manifest of known agent kinds. It is called once
// at wiring time with the concrete factories for ContentMind, Researcher,
// and Digest, never derived by scanning a package for types.
func (r *agentRegistryImpl) Discover(manifest []services.AgentManifestEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range manifest {
		if entry.Factory == nil {
			return fmt.Errorf("manifest entry %q has no factory", entry.Name)
		}
		r.factories[entry.Kind] = entry.Factory
	}
	return nil
}

func (r *agentRegistryImpl) Register(ctx context.Context, req models.RegisterAgentRequest) (*models.AgentDescriptor, error) {
	r.mu.RLock()
	_, known := r.factories[req.Kind]
	r.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: no factory registered for kind %q", services.ErrInvalid, req.Kind)
	}

	version := req.Version
	if version == "" {
		version = "1.0.0"
	}

	descriptor := &models.AgentDescriptor{
		ID:        uuid.New(),
		Name:      req.Name,
		Kind:      req.Kind,
		Status:    models.AgentStatusRegistered,
		Version:   version,
		Config:    req.Config,
		Tags:      mustJSON(req.Tags),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := r.db.WithContext(ctx).Create(descriptor).Error; err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return descriptor, nil
}

func (r *agentRegistryImpl) Get(ctx context.Context, name string) (*models.AgentDescriptor, error) {
	var descriptor models.AgentDescriptor
	if err := r.db.WithContext(ctx).Where("name = ? AND deleted_at IS NULL", name).First(&descriptor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: agent %q", services.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get agent descriptor: %w", err)
	}
	return &descriptor, nil
}

// Create constructs a live ProcessingAgent instance from a registered
// agent's persisted config, calling back into the kind's factory.
// The instance is cached by name: later calls return the cached instance
// unchanged, and only Deregister drops it.
func (r *agentRegistryImpl) Create(ctx context.Context, name string) (services.ProcessingAgent, error) {
	r.mu.RLock()
	if cached, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	descriptor, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if descriptor.Status == models.AgentStatusDisabled {
		return nil, fmt.Errorf("%w: agent %q is disabled", services.ErrUnavailable, name)
	}

	r.mu.RLock()
	factory, ok := r.factories[descriptor.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for kind %q", services.ErrInvalid, descriptor.Kind)
	}

	instance, err := factory(descriptor.Config, r.router, r.comps)
	if err != nil {
		return nil, fmt.Errorf("failed to construct agent %q: %w", name, err)
	}

	r.mu.Lock()
	r.instances[name] = instance
	r.mu.Unlock()
	return instance, nil
}

func (r *agentRegistryImpl) List(ctx context.Context, filter models.AgentListFilter) (*models.AgentListResponse, error) {
	query := r.db.WithContext(ctx).Model(&models.AgentDescriptor{}).Where("deleted_at IS NULL")

	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ?", term)
	}
	for _, tag := range filter.Tags {
		query = query.Where("tags @> ?", datatypes.JSON(fmt.Sprintf(`[%q]`, tag)))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count agents: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Size
	if size < 1 {
		size = 50
	}

	var descriptors []models.AgentDescriptor
	if err := query.Order("name ASC").Offset((page - 1) * size).Limit(size).Find(&descriptors).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	return &models.AgentListResponse{
		Agents: descriptors,
		Total:  total,
		Page:   page,
		Size:   size,
	}, nil
}

// Instances lists the names with a live, constructed instance. List, by
// contrast, reads persisted descriptors whether or not an instance has
// been built yet.
func (r *agentRegistryImpl) Instances() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *agentRegistryImpl) Capabilities(ctx context.Context) ([]models.AgentCapabilities, error) {
	var descriptors []models.AgentDescriptor
	if err := r.db.WithContext(ctx).Where("deleted_at IS NULL AND status != ?", models.AgentStatusDisabled).Find(&descriptors).Error; err != nil {
		return nil, fmt.Errorf("failed to load agent descriptors: %w", err)
	}

	capabilities := make([]models.AgentCapabilities, 0, len(descriptors))
	for _, d := range descriptors {
		capabilities = append(capabilities, models.AgentCapabilities{
			Name:  d.Name,
			Kind:  d.Kind,
			Tools: d.Config.Tools,
		})
	}
	return capabilities, nil
}

func (r *agentRegistryImpl) Deregister(ctx context.Context, name string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.AgentDescriptor{}).
		Where("name = ? AND deleted_at IS NULL", name).
		Update("deleted_at", &now)
	if result.Error != nil {
		return fmt.Errorf("failed to deregister agent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: agent %q", services.ErrNotFound, name)
	}

	r.mu.Lock()
	delete(r.instances, name)
	r.mu.Unlock()
	return nil
}
