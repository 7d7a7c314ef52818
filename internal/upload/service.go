package upload

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mediavault/mediavault/internal/common"
	"github.com/mediavault/mediavault/internal/objectstore"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/mediavault/mediavault/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Finalizer turns a completed upload into a catalog asset
type Finalizer interface {
	Finalize(ctx context.Context, session *types.UploadSession, etag string) (*types.Asset, error)
}

// Service coordinates chunked upload sessions against the object
// store's multipart upload API. The session row is the sole source of
// truth for which parts have landed; every state transition advances
// the row only after the corresponding remote call succeeded.
type Service struct {
	DB        *common.Database
	Store     objectstore.Client
	Finalizer Finalizer
	config    *config.UploadConfig
	locks     *sessionLocker
}

// NewService creates a new upload session service
func NewService(db *common.Database, store objectstore.Client, finalizer Finalizer, cfg *config.UploadConfig) *Service {
	return &Service{
		DB:        db,
		Store:     store,
		Finalizer: finalizer,
		config:    cfg,
		locks:     newSessionLocker(),
	}
}

// Initiate opens a multipart upload remotely and persists a new
// session in pending status. If the remote call fails no session is
// persisted; if persisting fails the remote upload is aborted so
// nothing is leaked on either side.
func (s *Service) Initiate(ctx context.Context, req *types.InitUploadRequest, ownerID uuid.UUID) (*types.UploadSession, error) {
	if req.DeclaredSize <= 0 {
		return nil, &ValidationError{Field: "declared_size", Reason: "must be a positive number of bytes"}
	}
	if req.DeclaredSize > s.config.MaxFileSize {
		return nil, &ValidationError{
			Field:  "declared_size",
			Reason: fmt.Sprintf("exceeds maximum file size of %s", utils.FormatBytes(s.config.MaxFileSize)),
		}
	}
	if req.Filename == "" || len(req.Filename) > 512 {
		return nil, &ValidationError{Field: "filename", Reason: "must be between 1 and 512 characters"}
	}
	if req.MimeType == "" || len(req.MimeType) > 255 {
		return nil, &ValidationError{Field: "mime_type", Reason: "must be between 1 and 255 characters"}
	}
	if len(req.Folder) > 256 {
		return nil, &ValidationError{Field: "folder", Reason: "must be at most 256 characters"}
	}

	storageKey := utils.GenerateStorageKey(req.Folder, req.Filename)

	uploadID, err := s.Store.Begin(ctx, storageKey, req.MimeType)
	if err != nil {
		return nil, &UpstreamError{Op: "begin", Err: err}
	}

	token, err := utils.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	chunkSize := s.config.ChunkSize
	totalChunks := int32((req.DeclaredSize + chunkSize - 1) / chunkSize)

	session := &types.UploadSession{
		SessionToken:   token,
		UploadID:       uploadID,
		Filename:       req.Filename,
		MimeType:       req.MimeType,
		FileSize:       req.DeclaredSize,
		StorageKey:     storageKey,
		ChunkSize:      chunkSize,
		TotalChunks:    totalChunks,
		UploadedChunks: 0,
		Status:         types.UploadStatusPending,
		OwnerID:        ownerID,
		LastActivityAt: time.Now().UTC(),
	}

	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		// The remote upload is already open; discard it rather than
		// leaking storage for a session we never recorded.
		if abortErr := s.Store.Abort(ctx, storageKey, uploadID); abortErr != nil {
			log.Error().Err(abortErr).
				Str("storage_key", storageKey).
				Str("upload_id", uploadID).
				Msg("failed to abort orphaned multipart upload")
		}
		return nil, fmt.Errorf("failed to persist upload session: %w", err)
	}

	log.Info().
		Str("session_token", token).
		Str("upload_id", uploadID).
		Str("filename", req.Filename).
		Int64("declared_size", req.DeclaredSize).
		Int32("total_chunks", totalChunks).
		Str("owner_id", ownerID.String()).
		Msg("upload session initiated")

	return session, nil
}

// GetSession resolves a session token for the given owner. An unknown
// token and a foreign owner both return ErrSessionNotFound.
func (s *Service) GetSession(ctx context.Context, token string, ownerID uuid.UUID) (*types.UploadSession, error) {
	var session types.UploadSession
	err := s.DB.WithContext(ctx).
		Where("session_token = ? AND owner_id = ?", token, ownerID).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load upload session: %w", err)
	}
	return &session, nil
}

// AcceptChunk stores one part and records it on the session. Replays
// of an already-recorded part number return the recorded etag without
// re-uploading, which makes client retries safe. The check and the
// append run under a per-session lock so a concurrently uploaded part
// can never be lost; the lock is released for the duration of the
// remote transfer itself.
func (s *Service) AcceptChunk(ctx context.Context, session *types.UploadSession, partNumber int32, body io.Reader, size int64) (*types.ChunkResponse, error) {
	if partNumber < 1 || partNumber > session.TotalChunks {
		return nil, &ValidationError{
			Field:  "part_number",
			Reason: fmt.Sprintf("must be between 1 and %d", session.TotalChunks),
		}
	}
	if size <= 0 {
		return nil, &ValidationError{Field: "chunk", Reason: "must not be empty"}
	}
	if size > s.config.MaxChunkSize {
		return nil, &ValidationError{
			Field:  "chunk",
			Reason: fmt.Sprintf("exceeds maximum chunk size of %s", utils.FormatBytes(s.config.MaxChunkSize)),
		}
	}

	// First pass: replay detection under the session lock.
	s.locks.Lock(session.ID)
	fresh, err := s.reload(ctx, session.ID)
	if err != nil {
		s.locks.Unlock(session.ID)
		return nil, err
	}
	if fresh.Status.IsTerminal() {
		s.locks.Unlock(session.ID)
		return nil, &SessionTerminalError{Status: fresh.Status}
	}
	if record, ok := fresh.PartRecords.Find(partNumber); ok {
		s.locks.Unlock(session.ID)
		log.Debug().
			Str("session_token", fresh.SessionToken).
			Int32("part_number", partNumber).
			Msg("chunk replay, returning recorded part")
		return s.chunkResponse(fresh, record), nil
	}
	s.locks.Unlock(session.ID)

	etag, err := s.Store.PutPart(ctx, fresh.StorageKey, fresh.UploadID, partNumber, body, size)
	if err != nil {
		return nil, &UpstreamError{Op: "put part", Err: err}
	}

	// Second pass: append under the lock, re-reading state because the
	// session may have changed while the part was in flight.
	s.locks.Lock(session.ID)
	defer s.locks.Unlock(session.ID)

	fresh, err = s.reload(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if fresh.Status.IsTerminal() {
		return nil, &SessionTerminalError{Status: fresh.Status}
	}

	if _, ok := fresh.PartRecords.Find(partNumber); ok {
		// A concurrent upload of the same part number landed first. Our
		// transfer overwrote the remote part, so the recorded etag must
		// be replaced with ours for the final completion call to match.
		for i := range fresh.PartRecords {
			if fresh.PartRecords[i].PartNumber == partNumber {
				fresh.PartRecords[i].ETag = etag
			}
		}
	} else {
		fresh.PartRecords = append(fresh.PartRecords, types.PartRecord{PartNumber: partNumber, ETag: etag})
	}
	fresh.UploadedChunks = int32(len(fresh.PartRecords))
	fresh.Status = types.UploadStatusUploading
	fresh.LastActivityAt = time.Now().UTC()

	err = s.DB.WithContext(ctx).Model(fresh).Updates(map[string]interface{}{
		"part_records":     fresh.PartRecords,
		"uploaded_chunks":  fresh.UploadedChunks,
		"status":           fresh.Status,
		"last_activity_at": fresh.LastActivityAt,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record uploaded chunk: %w", err)
	}

	log.Info().
		Str("session_token", fresh.SessionToken).
		Int32("part_number", partNumber).
		Int64("size", size).
		Int32("uploaded_chunks", fresh.UploadedChunks).
		Int32("total_chunks", fresh.TotalChunks).
		Msg("chunk accepted")

	return s.chunkResponse(fresh, types.PartRecord{PartNumber: partNumber, ETag: etag}), nil
}

// Complete finalizes the remote multipart upload and creates the
// catalog asset. Parts are re-sorted by part number because arrival
// order carries no meaning and the store requires strictly ascending
// numbers. If the remote completion fails the upload is aborted as
// compensation so an undecided remote upload does not keep accruing
// storage.
func (s *Service) Complete(ctx context.Context, session *types.UploadSession) (*types.Asset, error) {
	s.locks.Lock(session.ID)
	defer s.locks.Unlock(session.ID)

	fresh, err := s.reload(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if fresh.Status.IsTerminal() {
		return nil, &SessionTerminalError{Status: fresh.Status}
	}
	if fresh.UploadedChunks != fresh.TotalChunks {
		return nil, &IncompleteUploadError{Uploaded: fresh.UploadedChunks, Total: fresh.TotalChunks}
	}

	parts := make(types.PartRecordList, len(fresh.PartRecords))
	copy(parts, fresh.PartRecords)
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})

	etag, err := s.Store.Complete(ctx, fresh.StorageKey, fresh.UploadID, parts)
	if err != nil {
		// A failed completion can leave the remote upload open or
		// already discarded depending on the failure mode. Aborting is
		// the safe default; its own failure is logged but must not mask
		// the original error.
		if abortErr := s.Store.Abort(ctx, fresh.StorageKey, fresh.UploadID); abortErr != nil {
			log.Error().Err(abortErr).
				Str("session_token", fresh.SessionToken).
				Str("upload_id", fresh.UploadID).
				Msg("compensating abort failed after failed completion")
		}
		if dbErr := s.setStatus(ctx, fresh.ID, types.UploadStatusAborted); dbErr != nil {
			log.Error().Err(dbErr).
				Str("session_token", fresh.SessionToken).
				Msg("failed to mark session aborted after failed completion")
		}
		return nil, &UpstreamError{Op: "complete", Err: err}
	}

	asset, err := s.Finalizer.Finalize(ctx, fresh, etag)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset for completed upload: %w", err)
	}

	if err := s.setStatus(ctx, fresh.ID, types.UploadStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to mark session completed: %w", err)
	}

	log.Info().
		Str("session_token", fresh.SessionToken).
		Str("upload_id", fresh.UploadID).
		Str("asset_id", asset.ID.String()).
		Int64("size", fresh.FileSize).
		Msg("upload completed")

	return asset, nil
}

// Abort discards the remote multipart upload and marks the session
// aborted. Aborting an already-aborted session is a no-op; the remote
// store tolerates an upload that is already gone. On a remote failure
// the status is left unchanged so the caller can retry.
func (s *Service) Abort(ctx context.Context, session *types.UploadSession) error {
	s.locks.Lock(session.ID)
	defer s.locks.Unlock(session.ID)

	fresh, err := s.reload(ctx, session.ID)
	if err != nil {
		return err
	}
	if fresh.Status == types.UploadStatusAborted {
		return nil
	}
	if fresh.Status.IsTerminal() {
		return &SessionTerminalError{Status: fresh.Status}
	}

	if err := s.Store.Abort(ctx, fresh.StorageKey, fresh.UploadID); err != nil {
		return &UpstreamError{Op: "abort", Err: err}
	}

	if err := s.setStatus(ctx, fresh.ID, types.UploadStatusAborted); err != nil {
		return fmt.Errorf("failed to mark session aborted: %w", err)
	}

	log.Info().
		Str("session_token", fresh.SessionToken).
		Str("upload_id", fresh.UploadID).
		Msg("upload session aborted")

	return nil
}

// reload fetches the current session row by ID
func (s *Service) reload(ctx context.Context, id uuid.UUID) (*types.UploadSession, error) {
	var session types.UploadSession
	if err := s.DB.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load upload session: %w", err)
	}
	return &session, nil
}

// setStatus advances the session status
func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status types.UploadStatus) error {
	return s.DB.WithContext(ctx).
		Model(&types.UploadSession{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *Service) chunkResponse(session *types.UploadSession, record types.PartRecord) *types.ChunkResponse {
	return &types.ChunkResponse{
		PartNumber:     record.PartNumber,
		ETag:           record.ETag,
		UploadedChunks: session.UploadedChunks,
		TotalChunks:    session.TotalChunks,
	}
}
