package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache is the subset of caching operations the settings service
// needs. Any failure on read is treated as a miss so a degraded cache
// never makes configuration unavailable.
type Cache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Service is a key-value configuration repository with a read-through
// cache. Writes invalidate the cached entry so readers converge on the
// new value within one round trip instead of waiting out the TTL.
type Service struct {
	db    *gorm.DB
	cache Cache
	ttl   time.Duration
}

// NewService creates a new settings service
func NewService(db *gorm.DB, cache Cache, ttl time.Duration) *Service {
	return &Service{
		db:    db,
		cache: cache,
		ttl:   ttl,
	}
}

func cacheKey(key string) string {
	return "setting:" + key
}

// Get returns the value for a setting key, reading through the cache
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if s.cache != nil {
		if value, err := s.cache.GetString(ctx, cacheKey(key)); err == nil {
			return value, nil
		}
	}

	var setting types.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf("setting %s not found", key)
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetString(ctx, cacheKey(key), setting.Value, s.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache setting")
		}
	}

	return setting.Value, nil
}

// GetOrDefault returns the value for a setting key, or the fallback if
// the key does not exist
func (s *Service) GetOrDefault(ctx context.Context, key, fallback string) string {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return value
}

// Set upserts a setting and invalidates its cached entry
func (s *Service) Set(ctx context.Context, key, value string, updatedBy uuid.UUID) error {
	setting := types.Setting{
		Key:       key,
		Value:     value,
		UpdatedBy: updatedBy,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey(key)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to invalidate cached setting")
		}
	}

	log.Info().
		Str("key", key).
		Str("updated_by", updatedBy.String()).
		Msg("setting updated")

	return nil
}

// All returns every setting row
func (s *Service) All(ctx context.Context) ([]types.Setting, error) {
	var settings []types.Setting
	if err := s.db.WithContext(ctx).Order("key").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}
