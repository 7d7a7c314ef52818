package assets

import (
	"context"
	"fmt"
	"image"
	"io"

	// Registered for dimension probing of completed image uploads.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/mediavault/mediavault/internal/common"
	"github.com/mediavault/mediavault/internal/objectstore"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/mediavault/mediavault/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service manages the asset catalog
type Service struct {
	DB    *common.Database
	Store objectstore.Client
}

// NewService creates a new asset service
func NewService(db *common.Database, store objectstore.Client) *Service {
	return &Service{
		DB:    db,
		Store: store,
	}
}

// Finalize creates the catalog record for a completed upload. Image
// dimensions are probed best-effort; a probe failure never fails the
// completion, the asset just carries no dimensions.
func (s *Service) Finalize(ctx context.Context, session *types.UploadSession, etag string) (*types.Asset, error) {
	asset := &types.Asset{
		Filename:   session.Filename,
		MimeType:   session.MimeType,
		Size:       session.FileSize,
		ETag:       etag,
		StorageKey: session.StorageKey,
		OwnerID:    session.OwnerID,
	}

	if utils.IsImageMimeType(session.MimeType) {
		if width, height, err := s.probeDimensions(ctx, session.StorageKey); err != nil {
			log.Warn().Err(err).
				Str("storage_key", session.StorageKey).
				Str("mime_type", session.MimeType).
				Msg("failed to probe image dimensions")
		} else {
			asset.Width = &width
			asset.Height = &height
		}
	}

	if err := s.DB.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("failed to save asset: %w", err)
	}

	log.Info().
		Str("asset_id", asset.ID.String()).
		Str("filename", asset.Filename).
		Int64("size", asset.Size).
		Msg("asset created")

	return asset, nil
}

// probeDimensions reads just enough of the stored object to decode the
// image header
func (s *Service) probeDimensions(ctx context.Context, storageKey string) (int, int, error) {
	body, err := s.Store.Get(ctx, storageKey)
	if err != nil {
		return 0, 0, err
	}
	defer body.Close()

	cfg, _, err := image.DecodeConfig(body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Get returns one asset owned by the given user
func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (*types.Asset, error) {
	var asset types.Asset
	err := s.DB.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&asset).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("asset not found")
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

// List returns the owner's assets matching the filter
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, filter *types.AssetFilter) ([]*types.Asset, int64, error) {
	query := s.DB.WithContext(ctx).Model(&types.Asset{}).Where("owner_id = ?", ownerID)

	if filter.Filename != "" {
		query = query.Where("LOWER(filename) LIKE LOWER(?)", "%"+filter.Filename+"%")
	}
	if filter.MimeType != "" {
		query = query.Where("mime_type = ?", filter.MimeType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assets: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var result []*types.Asset
	if err := query.Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list assets: %w", err)
	}

	return result, total, nil
}

// Download streams the stored object for an asset
func (s *Service) Download(ctx context.Context, id, ownerID uuid.UUID) (*types.Asset, io.ReadCloser, error) {
	asset, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.Store.Get(ctx, asset.StorageKey)
	if err != nil {
		log.Error().Err(err).
			Str("asset_id", asset.ID.String()).
			Str("storage_key", asset.StorageKey).
			Msg("failed to retrieve asset from object store")
		return nil, nil, fmt.Errorf("failed to retrieve asset: %w", err)
	}

	return asset, body, nil
}

// Delete removes the stored object and then the catalog row. The
// object goes first: a row without an object is a broken asset, an
// object without a row is only leaked storage.
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	asset, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if err := s.Store.Delete(ctx, asset.StorageKey); err != nil {
		return fmt.Errorf("failed to delete asset from storage: %w", err)
	}

	if err := s.DB.WithContext(ctx).Delete(asset).Error; err != nil {
		return fmt.Errorf("failed to delete asset record: %w", err)
	}

	log.Info().
		Str("asset_id", asset.ID.String()).
		Str("filename", asset.Filename).
		Msg("asset deleted")

	return nil
}
