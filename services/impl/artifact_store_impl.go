package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// artifactStoreImpl is the durable Postgres-backed archive of
// ContentArtifacts: append now, query by recency window later.
type artifactStoreImpl struct {
	db *gorm.DB
}

func NewArtifactStore(db *gorm.DB) services.ArtifactStore {
	return &artifactStoreImpl{db: db}
}

func (s *artifactStoreImpl) Save(ctx context.Context, artifact *models.ContentArtifact) error {
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	now := time.Now()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now

	if err := s.db.WithContext(ctx).Save(artifact).Error; err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

func (s *artifactStoreImpl) Get(ctx context.Context, id uuid.UUID) (*models.ContentArtifact, error) {
	var artifact models.ContentArtifact
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&artifact).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: artifact %s", services.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

func (s *artifactStoreImpl) List(ctx context.Context, filter models.ArtifactListFilter) (*models.ArtifactListResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.ContentArtifact{}).Where("deleted_at IS NULL")
	query = applyArtifactFilter(query, filter.ContentTypes, filter.Tags, filter.Since, filter.Until, filter.Status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Size
	if size < 1 {
		size = 50
	}

	var artifacts []models.ContentArtifact
	if err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	return &models.ArtifactListResponse{
		Artifacts: artifacts,
		Total:     total,
		Page:      page,
		Size:      size,
	}, nil
}

// Since returns every completed artifact created after `since` matching
// filter, the query DigestAgent runs each time a scheduled job comes due:
// "everything accumulated since last_run."
func (s *artifactStoreImpl) Since(ctx context.Context, since time.Time, filter models.DigestFilter) ([]models.ContentArtifact, error) {
	query := s.db.WithContext(ctx).Model(&models.ContentArtifact{}).
		Where("deleted_at IS NULL AND created_at > ? AND status = ?", since, models.ArtifactStatusCompleted)

	if len(filter.ContentTypes) > 0 {
		query = query.Where("content_type IN ?", filter.ContentTypes)
	}
	for _, tag := range filter.Tags {
		query = query.Where("tags @> ?", datatypes.JSON(fmt.Sprintf(`[%q]`, tag)))
	}

	var artifacts []models.ContentArtifact
	if err := query.Order("created_at ASC").Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("failed to query artifacts since %s: %w", since, err)
	}
	return artifacts, nil
}

func applyArtifactFilter(query *gorm.DB, contentTypes []models.ContentType, tags []string, since, until *time.Time, status *models.ArtifactStatus) *gorm.DB {
	if len(contentTypes) > 0 {
		query = query.Where("content_type IN ?", contentTypes)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	if until != nil {
		query = query.Where("created_at <= ?", *until)
	}
	for _, tag := range tags {
		query = query.Where("tags @> ?", datatypes.JSON(fmt.Sprintf(`[%q]`, tag)))
	}
	return query
}
