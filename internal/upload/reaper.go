package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/mediavault/mediavault/pkg/types"
	"github.com/rs/zerolog/log"
)

// SweepResult aggregates the outcome of one stale-session sweep
type SweepResult struct {
	Scanned int `json:"scanned"`
	Aborted int `json:"aborted"`
	Failed  int `json:"failed"`
}

// FindStale returns active sessions with no activity for longer than
// olderThan
func (s *Service) FindStale(ctx context.Context, olderThan time.Duration) ([]types.UploadSession, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var sessions []types.UploadSession
	err := s.DB.WithContext(ctx).
		Where("status IN ?", []types.UploadStatus{types.UploadStatusPending, types.UploadStatusUploading}).
		Where("last_activity_at < ?", cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	return sessions, nil
}

// SweepStale aborts every session abandoned past the staleness
// threshold, remotely and locally. Failures are isolated per session
// so one broken upload cannot block the rest of the sweep. A session
// that receives a chunk between selection and abort simply loses the
// race; the client's next request surfaces the aborted state.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	sessions, err := s.FindStale(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(sessions)}
	for i := range sessions {
		session := sessions[i]
		if err := s.Abort(ctx, &session); err != nil {
			result.Failed++
			log.Error().Err(err).
				Str("session_token", session.SessionToken).
				Str("upload_id", session.UploadID).
				Time("last_activity_at", session.LastActivityAt).
				Msg("failed to abort stale session")
			continue
		}
		result.Aborted++
		log.Info().
			Str("session_token", session.SessionToken).
			Time("last_activity_at", session.LastActivityAt).
			Msg("stale session aborted")
	}

	log.Info().
		Int("scanned", result.Scanned).
		Int("aborted", result.Aborted).
		Int("failed", result.Failed).
		Dur("older_than", olderThan).
		Msg("stale session sweep finished")

	return result, nil
}
