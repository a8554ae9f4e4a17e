package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/pkg/promptgrammar"
	"github.com/bluelabel/contentmind/services"
	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type componentServiceImpl struct {
	db     *gorm.DB
	router services.RouterService
}

// NewComponentService creates a new ComponentService implementation.
func NewComponentService(db *gorm.DB, router services.RouterService) services.ComponentService {
	return &componentServiceImpl{db: db, router: router}
}

// WireRouter breaks the ComponentService/RouterService construction
// cycle: the Router needs a ComponentService to render component-backed
// prompts, and ComponentService.TestWithProvider needs a Router to call.
// Callers build ComponentService first with a nil router, construct the
// Router against it, then call this to complete the wiring.
func WireRouter(comp services.ComponentService, router services.RouterService) {
	if impl, ok := comp.(*componentServiceImpl); ok {
		impl.router = router
	}
}

func (s *componentServiceImpl) Create(ctx context.Context, req models.CreateComponentRequest) (*models.PromptComponent, error) {
	validation := promptgrammar.Validate(req.Template)
	if !validation.Valid {
		return nil, fmt.Errorf("%w: %s", services.ErrInvalid, strings.Join(validation.Errors, "; "))
	}

	required, optional := promptgrammar.RequiredAndOptional(req.Template)

	component := &models.PromptComponent{
		ID:             uuid.New(),
		Name:           req.Name,
		Description:    req.Description,
		Template:       req.Template,
		Version:        "1.0.0",
		RequiredInputs: mustJSON(required),
		OptionalInputs: mustJSON(optional),
		Outputs:        mustJSON([]string{}),
		Tags:           mustJSON(req.Tags),
		Metadata:       mustJSON(req.Metadata),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(component).Error; err != nil {
		return nil, fmt.Errorf("failed to create component: %w", err)
	}
	return component, nil
}

func (s *componentServiceImpl) Get(ctx context.Context, id uuid.UUID) (*models.PromptComponent, error) {
	var component models.PromptComponent
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&component).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: component %s", services.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get component: %w", err)
	}
	return &component, nil
}

func (s *componentServiceImpl) GetByName(ctx context.Context, name string) (*models.PromptComponent, error) {
	var component models.PromptComponent
	if err := s.db.WithContext(ctx).Where("name = ? AND deleted_at IS NULL", name).First(&component).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: component %q", services.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get component: %w", err)
	}
	return &component, nil
}

func (s *componentServiceImpl) List(ctx context.Context, filter models.ComponentListFilter) (*models.ComponentListResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.PromptComponent{}).Where("deleted_at IS NULL")

	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", term, term)
	}
	for _, tag := range filter.Tags {
		query = query.Where("tags @> ?", datatypes.JSON(fmt.Sprintf(`[%q]`, tag)))
	}

	var candidates []models.PromptComponent
	if err := query.Order("name ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}

	if filter.Expr != "" {
		filtered, err := filterByExpr(candidates, filter.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid filter expression: %v", services.ErrInvalid, err)
		}
		candidates = filtered
	}

	total := int64(len(candidates))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Size
	if size < 1 {
		size = 50
	}

	start := (page - 1) * size
	end := start + size
	if start > len(candidates) {
		start = len(candidates)
	}
	if end > len(candidates) {
		end = len(candidates)
	}

	return &models.ComponentListResponse{
		Components: candidates[start:end],
		Total:      total,
		Page:       page,
		Size:       size,
	}, nil
}

// filterByExpr evaluates an expr-lang boolean expression against each
// candidate component, with the component's exported fields available as
// top-level identifiers (Name, Description, Template, Version, Tags).
func filterByExpr(candidates []models.PromptComponent, filterExpr string) ([]models.PromptComponent, error) {
	program, err := expr.Compile(filterExpr, expr.AsBool())
	if err != nil {
		return nil, err
	}

	var result []models.PromptComponent
	for _, c := range candidates {
		var tags []string
		_ = json.Unmarshal(c.Tags, &tags)

		env := map[string]any{
			"Name":        c.Name,
			"Description": c.Description,
			"Template":    c.Template,
			"Version":     c.Version,
			"Tags":        tags,
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, err
		}
		if matched, ok := out.(bool); ok && matched {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *componentServiceImpl) Update(ctx context.Context, id uuid.UUID, req models.UpdateComponentRequest) (*models.PromptComponent, error) {
	component, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	increment := true
	if req.IncrementVersion != nil {
		increment = *req.IncrementVersion
	}

	// update(id, {}) is a no-op: same id, same version, no snapshot.
	if !updateChangesAnything(component, req) {
		return component, nil
	}

	if err := s.snapshotVersion(ctx, component); err != nil {
		return nil, err
	}

	if req.Name != nil {
		component.Name = *req.Name
	}
	if req.Description != nil {
		component.Description = *req.Description
	}
	if req.Template != nil {
		validation := promptgrammar.Validate(*req.Template)
		if !validation.Valid {
			return nil, fmt.Errorf("%w: %s", services.ErrInvalid, strings.Join(validation.Errors, "; "))
		}
		component.Template = *req.Template
		required, optional := promptgrammar.RequiredAndOptional(*req.Template)
		component.RequiredInputs = mustJSON(required)
		component.OptionalInputs = mustJSON(optional)
	}
	if req.Tags != nil {
		component.Tags = mustJSON(req.Tags)
	}
	if req.Metadata != nil {
		component.Metadata = mustJSON(req.Metadata)
	}
	if increment {
		component.Version = bumpPatch(component.Version)
	}
	component.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(component).Error; err != nil {
		return nil, fmt.Errorf("failed to update component: %w", err)
	}
	return component, nil
}

// updateChangesAnything compares an update request against the current
// component state, field by field, so an update carrying only unchanged
// (or no) fields never snapshots or bumps the version.
func updateChangesAnything(component *models.PromptComponent, req models.UpdateComponentRequest) bool {
	if req.Name != nil && *req.Name != component.Name {
		return true
	}
	if req.Description != nil && *req.Description != component.Description {
		return true
	}
	if req.Template != nil && *req.Template != component.Template {
		return true
	}
	if req.Tags != nil && string(mustJSON(req.Tags)) != string(component.Tags) {
		return true
	}
	if req.Metadata != nil && string(mustJSON(req.Metadata)) != string(component.Metadata) {
		return true
	}
	return false
}

// snapshotVersion records the component's current state as an append-only
// ComponentVersion row, taken immediately before any overwrite. At most
// one snapshot exists per (component, version): re-snapshotting the same
// version (e.g. repeated updates with increment_version=false) is a no-op,
// so version labels stay unique.
func (s *componentServiceImpl) snapshotVersion(ctx context.Context, component *models.PromptComponent) error {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.ComponentVersion{}).
		Where("component_id = ? AND version = ?", component.ID, component.Version).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("failed to check for existing snapshot: %w", err)
	}
	if existing > 0 {
		return nil
	}
	snapshot, err := json.Marshal(component)
	if err != nil {
		return fmt.Errorf("failed to snapshot component: %w", err)
	}
	version := &models.ComponentVersion{
		ID:          uuid.New(),
		ComponentID: component.ID,
		Version:     component.Version,
		Snapshot:    datatypes.JSON(snapshot),
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(version).Error; err != nil {
		return fmt.Errorf("failed to store component version: %w", err)
	}
	return nil
}

// bumpPatch increments the patch segment of a "major.minor.patch" version
// string, resetting to "1.0.0" if the version is malformed.
func bumpPatch(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) != 3 {
		return "1.0.0"
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "1.0.0"
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

func (s *componentServiceImpl) Delete(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	component, err := s.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.snapshotVersion(ctx, component); err != nil {
		return uuid.Nil, err
	}
	var archived models.ComponentVersion
	if err := s.db.WithContext(ctx).Where("component_id = ?", id).Order("created_at DESC").First(&archived).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up archived version: %w", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(component).Update("deleted_at", &now).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to delete component: %w", err)
	}
	return archived.ID, nil
}

func (s *componentServiceImpl) Duplicate(ctx context.Context, id uuid.UUID, newName string) (*models.PromptComponent, error) {
	source, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	clone := &models.PromptComponent{
		ID:             uuid.New(),
		Name:           newName,
		Description:    source.Description,
		Template:       source.Template,
		Version:        "1.0.0",
		RequiredInputs: source.RequiredInputs,
		OptionalInputs: source.OptionalInputs,
		Outputs:        source.Outputs,
		Tags:           source.Tags,
		Metadata:       source.Metadata,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(clone).Error; err != nil {
		return nil, fmt.Errorf("failed to duplicate component: %w", err)
	}
	return clone, nil
}

func (s *componentServiceImpl) Render(ctx context.Context, id uuid.UUID, inputs map[string]string) (string, error) {
	component, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if inputs == nil {
		return "", fmt.Errorf("%w: inputs must not be nil", services.ErrInvalid)
	}
	rendered, warnings, err := promptgrammar.Render(component.Template, inputs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalid, err)
	}
	for _, w := range warnings {
		log.Printf("[COMPONENTS] render %s: %s", id, w)
	}
	return rendered, nil
}

func (s *componentServiceImpl) Validate(ctx context.Context, template string) (promptgrammar.ValidationResult, error) {
	return promptgrammar.Validate(template), nil
}

func (s *componentServiceImpl) Versions(ctx context.Context, id uuid.UUID) ([]models.ComponentVersion, error) {
	var versions []models.ComponentVersion
	if err := s.db.WithContext(ctx).Where("component_id = ?", id).Order("created_at DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list component versions: %w", err)
	}
	return versions, nil
}

func (s *componentServiceImpl) GetVersion(ctx context.Context, id uuid.UUID, version string) (*models.ComponentVersion, error) {
	var v models.ComponentVersion
	if err := s.db.WithContext(ctx).Where("component_id = ? AND version = ?", id, version).First(&v).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: version %s of component %s", services.ErrNotFound, version, id)
		}
		return nil, fmt.Errorf("failed to get component version: %w", err)
	}
	return &v, nil
}

func (s *componentServiceImpl) Compare(ctx context.Context, id uuid.UUID, fromVersion, toVersion string) (*models.ComponentDiff, error) {
	from, err := s.snapshotAsComponent(ctx, id, fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := s.snapshotAsComponent(ctx, id, toVersion)
	if err != nil {
		return nil, err
	}

	return &models.ComponentDiff{
		ComponentID:  id,
		FromVersion:  fromVersion,
		ToVersion:    toVersion,
		NameChanged:  from.Name != to.Name,
		DescChanged:  from.Description != to.Description,
		TemplChanged: from.Template != to.Template,
		TagsChanged:  string(from.Tags) != string(to.Tags),
		MetaChanged:  string(from.Metadata) != string(to.Metadata),
	}, nil
}

// snapshotAsComponent resolves a version label to its snapshotted
// component state, treating the component's current live version as
// available even if it has no corresponding ComponentVersion row yet.
func (s *componentServiceImpl) snapshotAsComponent(ctx context.Context, id uuid.UUID, version string) (*models.PromptComponent, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version == version {
		return current, nil
	}
	v, err := s.GetVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}
	var snapshot models.PromptComponent
	if err := json.Unmarshal(v.Snapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode version snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *componentServiceImpl) Export(ctx context.Context, id uuid.UUID) ([]byte, error) {
	component, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(component, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export component: %w", err)
	}
	return data, nil
}

// Import restores a component from its Export form, keeping the
// exported id and version so export-then-import round-trips (only
// updated_at moves). An existing component under the same id is an
// error unless overwrite is set, in which case its current state is
// snapshotted and replaced.
func (s *componentServiceImpl) Import(ctx context.Context, data []byte, overwrite bool) (*models.PromptComponent, error) {
	var imported models.PromptComponent
	if err := json.Unmarshal(data, &imported); err != nil {
		return nil, fmt.Errorf("%w: malformed component export: %v", services.ErrInvalid, err)
	}

	validation := promptgrammar.Validate(imported.Template)
	if !validation.Valid {
		return nil, fmt.Errorf("%w: %s", services.ErrInvalid, strings.Join(validation.Errors, "; "))
	}

	required, optional := promptgrammar.RequiredAndOptional(imported.Template)
	component := &imported
	if component.ID == uuid.Nil {
		component.ID = uuid.New()
	}
	if component.Version == "" {
		component.Version = "1.0.0"
	}
	component.RequiredInputs = mustJSON(required)
	component.OptionalInputs = mustJSON(optional)
	if component.Outputs == nil {
		component.Outputs = mustJSON([]string{})
	}
	if component.Tags == nil {
		component.Tags = mustJSON([]string{})
	}
	if component.Metadata == nil {
		component.Metadata = mustJSON(map[string]any{})
	}
	if component.CreatedAt.IsZero() {
		component.CreatedAt = time.Now()
	}
	component.UpdatedAt = time.Now()
	component.DeletedAt = nil

	// The id may be held by a live or an archived (soft-deleted) row;
	// either way it collides, so look it up without the deleted filter.
	var existing models.PromptComponent
	err := s.db.WithContext(ctx).Where("id = ?", component.ID).First(&existing).Error
	switch {
	case err == nil:
		if !overwrite {
			return nil, fmt.Errorf("%w: component %s already exists (set overwrite to replace)", services.ErrInvalid, component.ID)
		}
		if err := s.snapshotVersion(ctx, &existing); err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Save(component).Error; err != nil {
			return nil, fmt.Errorf("failed to overwrite component: %w", err)
		}
		return component, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to check for existing component: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(component).Error; err != nil {
		return nil, fmt.Errorf("failed to import component: %w", err)
	}
	return component, nil
}

func (s *componentServiceImpl) TestRender(ctx context.Context, id uuid.UUID, inputs map[string]string) (*models.ComponentTestResult, error) {
	component, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var errs, warnings []string
	validation := promptgrammar.Validate(component.Template)
	errs = append(errs, validation.Errors...)
	warnings = append(warnings, validation.Warnings...)

	rendered, renderWarnings, err := promptgrammar.Render(component.Template, inputs)
	if err != nil {
		errs = append(errs, err.Error())
	}
	warnings = append(warnings, renderWarnings...)

	result := &models.ComponentTestResult{
		ID:          uuid.New(),
		ComponentID: id,
		Mode:        "render",
		Inputs:      mustJSON(inputs),
		Rendered:    rendered,
		Errors:      mustJSON(errs),
		Warnings:    mustJSON(warnings),
		DurationMs:  int(time.Since(start).Milliseconds()),
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(result).Error; err != nil {
		return nil, fmt.Errorf("failed to store test result: %w", err)
	}
	return result, nil
}

func (s *componentServiceImpl) TestWithProvider(ctx context.Context, id uuid.UUID, inputs map[string]string, task string) (*models.ComponentTestResult, error) {
	if s.router == nil {
		return nil, fmt.Errorf("%w: no router configured for provider test", services.ErrUnavailable)
	}

	start := time.Now()
	rendered, err := s.Render(ctx, id, inputs)
	if err != nil {
		return nil, err
	}

	routed, err := s.router.Route(ctx, models.RouteRequest{Task: task, Prompt: rendered})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrProviderError, err)
	}

	result := &models.ComponentTestResult{
		ID:          uuid.New(),
		ComponentID: id,
		Mode:        "llm",
		Inputs:      mustJSON(inputs),
		Rendered:    rendered,
		ProviderOut: routed.Text,
		Provider:    routed.Provider,
		Model:       routed.Model,
		TokenUsage:  routed.TokenUsage,
		Errors:      mustJSON([]string{}),
		Warnings:    mustJSON([]string{}),
		DurationMs:  int(time.Since(start).Milliseconds()),
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(result).Error; err != nil {
		return nil, fmt.Errorf("failed to store test result: %w", err)
	}
	return result, nil
}

func (s *componentServiceImpl) CompareTestResults(ctx context.Context, resultID1, resultID2 uuid.UUID) (*services.TestResultDiff, error) {
	var r1, r2 models.ComponentTestResult
	if err := s.db.WithContext(ctx).Where("id = ?", resultID1).First(&r1).Error; err != nil {
		return nil, fmt.Errorf("%w: test result %s", services.ErrNotFound, resultID1)
	}
	if err := s.db.WithContext(ctx).Where("id = ?", resultID2).First(&r2).Error; err != nil {
		return nil, fmt.Errorf("%w: test result %s", services.ErrNotFound, resultID2)
	}

	log.Printf("[COMPONENTS] comparing test results %s and %s", resultID1, resultID2)
	return &services.TestResultDiff{
		Result1:         resultID1,
		Result2:         resultID2,
		RenderedSame:    r1.Rendered == r2.Rendered,
		ProviderOutSame: r1.ProviderOut == r2.ProviderOut,
	}, nil
}

// mustJSON marshals a value to datatypes.JSON, panicking on error. Only
// ever called with values this package constructs itself.
func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mustJSON: %v", err))
	}
	return datatypes.JSON(b)
}
