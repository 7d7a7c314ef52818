package stats

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/mediavault/mediavault/pkg/types"
)

// Service aggregates catalog and upload pipeline statistics for the
// admin surface
type Service struct {
	db *gorm.DB
}

// NewService creates a new stats service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CatalogStats summarizes the asset catalog
type CatalogStats struct {
	TotalAssets      int64           `json:"total_assets"`
	TotalBytes       int64           `json:"total_bytes"`
	AssetsByType     []MimeTypeCount `json:"assets_by_type"`
	ActiveSessions   int64           `json:"active_sessions"`
	SessionsByStatus []StatusCount   `json:"sessions_by_status"`
}

// MimeTypeCount is one row of the per-MIME-type breakdown
type MimeTypeCount struct {
	MimeType string `json:"mime_type"`
	Count    int64  `json:"count"`
	Bytes    int64  `json:"bytes"`
}

// StatusCount is one row of the per-status session breakdown
type StatusCount struct {
	Status types.UploadStatus `json:"status"`
	Count  int64              `json:"count"`
}

// GetCatalogStats returns totals and breakdowns across assets and
// upload sessions
func (s *Service) GetCatalogStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{}

	if err := s.db.WithContext(ctx).Model(&types.Asset{}).Count(&stats.TotalAssets).Error; err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	var totalBytes sql.NullInt64
	if err := s.db.WithContext(ctx).Model(&types.Asset{}).
		Select("SUM(size)").
		Scan(&totalBytes).Error; err != nil {
		return nil, fmt.Errorf("failed to sum asset sizes: %w", err)
	}
	stats.TotalBytes = totalBytes.Int64

	if err := s.db.WithContext(ctx).Model(&types.Asset{}).
		Select("mime_type, COUNT(*) as count, SUM(size) as bytes").
		Group("mime_type").
		Order("count DESC").
		Scan(&stats.AssetsByType).Error; err != nil {
		return nil, fmt.Errorf("failed to break down assets by type: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&types.UploadSession{}).
		Where("status IN ?", []types.UploadStatus{types.UploadStatusPending, types.UploadStatusUploading}).
		Count(&stats.ActiveSessions).Error; err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&types.UploadSession{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&stats.SessionsByStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to break down sessions by status: %w", err)
	}

	return stats, nil
}
