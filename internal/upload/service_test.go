package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediavault/mediavault/internal/common"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockClient implements objectstore.Client for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Begin(ctx context.Context, key, contentType string) (string, error) {
	args := m.Called(ctx, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockClient) PutPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	args := m.Called(ctx, key, uploadID, partNumber, body, size)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Complete(ctx context.Context, key, uploadID string, parts []types.PartRecord) (string, error) {
	args := m.Called(ctx, key, uploadID, parts)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Abort(ctx context.Context, key, uploadID string) error {
	args := m.Called(ctx, key, uploadID)
	return args.Error(0)
}

func (m *MockClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockClient) Head(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockClient) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// stubFinalizer records the catalog asset directly
type stubFinalizer struct {
	db  *common.Database
	err error
}

func (f *stubFinalizer) Finalize(ctx context.Context, session *types.UploadSession, etag string) (*types.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	asset := &types.Asset{
		Filename:   session.Filename,
		MimeType:   session.MimeType,
		Size:       session.FileSize,
		ETag:       etag,
		StorageKey: session.StorageKey,
		OwnerID:    session.OwnerID,
	}
	if err := f.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, err
	}
	return asset, nil
}

func setupTestDB(t *testing.T) *common.Database {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&types.User{}, &types.UploadSession{}, &types.Asset{})
	require.NoError(t, err)

	return &common.Database{DB: db}
}

func testUploadConfig() *config.UploadConfig {
	return &config.UploadConfig{
		MaxFileSize:  500 * 1024 * 1024,
		ChunkSize:    10 * 1024 * 1024,
		MaxChunkSize: 11 * 1024 * 1024,
		StaleAfter:   24 * time.Hour,
	}
}

func setupTestService(t *testing.T) (*Service, *common.Database, *MockClient) {
	db := setupTestDB(t)
	store := &MockClient{}
	service := NewService(db, store, &stubFinalizer{db: db}, testUploadConfig())
	return service, db, store
}

func createTestUser(t *testing.T, db *common.Database) *types.User {
	user := &types.User{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "hashedpassword",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func initTestSession(t *testing.T, service *Service, store *MockClient, ownerID uuid.UUID, size int64) *types.UploadSession {
	store.On("Begin", mock.Anything, mock.Anything, mock.Anything).Return("remote-upload-1", nil).Once()

	session, err := service.Initiate(context.Background(), &types.InitUploadRequest{
		Filename:     "video.mp4",
		MimeType:     "video/mp4",
		DeclaredSize: size,
	}, ownerID)
	require.NoError(t, err)
	return session
}

func TestInitiate_Success(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)

	store.On("Begin", mock.Anything, mock.Anything, "video/mp4").Return("remote-upload-1", nil).Once()

	session, err := service.Initiate(context.Background(), &types.InitUploadRequest{
		Filename:     "video.mp4",
		MimeType:     "video/mp4",
		DeclaredSize: 25_000_000,
		Folder:       "media",
	}, user.ID)

	require.NoError(t, err)
	assert.Len(t, session.SessionToken, 64)
	assert.Equal(t, "remote-upload-1", session.UploadID)
	assert.Equal(t, types.UploadStatusPending, session.Status)
	assert.Equal(t, int32(3), session.TotalChunks) // 25 MB at 10 MiB chunks
	assert.Equal(t, int32(0), session.UploadedChunks)
	assert.Equal(t, user.ID, session.OwnerID)
	assert.False(t, session.LastActivityAt.IsZero())
	store.AssertExpectations(t)
}

func TestInitiate_Validation(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	cases := []struct {
		name string
		req  types.InitUploadRequest
	}{
		{"zero size", types.InitUploadRequest{Filename: "a.bin", MimeType: "application/octet-stream", DeclaredSize: 0}},
		{"negative size", types.InitUploadRequest{Filename: "a.bin", MimeType: "application/octet-stream", DeclaredSize: -1}},
		{"oversized file", types.InitUploadRequest{Filename: "a.bin", MimeType: "application/octet-stream", DeclaredSize: 501 * 1024 * 1024}},
		{"empty filename", types.InitUploadRequest{Filename: "", MimeType: "application/octet-stream", DeclaredSize: 100}},
		{"empty mime type", types.InitUploadRequest{Filename: "a.bin", MimeType: "", DeclaredSize: 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Initiate(ctx, &tc.req, user.ID)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}

	// No remote upload may be opened for rejected input
	store.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiate_UpstreamFailure(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)

	store.On("Begin", mock.Anything, mock.Anything, mock.Anything).
		Return("", fmt.Errorf("connection refused")).Once()

	_, err := service.Initiate(context.Background(), &types.InitUploadRequest{
		Filename:     "a.bin",
		MimeType:     "application/octet-stream",
		DeclaredSize: 100,
	}, user.ID)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "begin", upstreamErr.Op)

	// No session row may exist after a failed initiate
	var count int64
	require.NoError(t, db.Model(&types.UploadSession{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetSession_OwnerScoping(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	other := &types.User{Username: "other", Email: "other@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(other).Error)

	session := initTestSession(t, service, store, user.ID, 100)
	ctx := context.Background()

	found, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	// A foreign owner and an unknown token look identical
	_, err = service.GetSession(ctx, session.SessionToken, other.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = service.GetSession(ctx, "no-such-token", user.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAcceptChunk_Success(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	store.On("PutPart", mock.Anything, mock.Anything, "remote-upload-1", int32(1), mock.Anything, int64(10_000_000)).
		Return("etag-1", nil).Once()

	resp, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, int32(1), resp.PartNumber)
	assert.Equal(t, "etag-1", resp.ETag)
	assert.Equal(t, int32(1), resp.UploadedChunks)
	assert.Equal(t, int32(3), resp.TotalChunks)

	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusUploading, fresh.Status)
	assert.Equal(t, int32(1), fresh.UploadedChunks)
	record, ok := fresh.PartRecords.Find(1)
	require.True(t, ok)
	assert.Equal(t, "etag-1", record.ETag)
	store.AssertExpectations(t)
}

func TestAcceptChunk_ReplayReturnsRecordedPart(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	store.On("PutPart", mock.Anything, mock.Anything, mock.Anything, int32(1), mock.Anything, mock.Anything).
		Return("etag-1", nil).Once()

	first, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 1024)
	require.NoError(t, err)

	// The retry must not reach the object store
	replay, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 1024)
	require.NoError(t, err)
	assert.Equal(t, first.ETag, replay.ETag)
	assert.Equal(t, int32(1), replay.UploadedChunks)
	store.AssertNumberOfCalls(t, "PutPart", 1)
}

func TestAcceptChunk_Validation(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	cases := []struct {
		name       string
		partNumber int32
		size       int64
	}{
		{"part number zero", 0, 1024},
		{"part number past total", 4, 1024},
		{"empty chunk", 1, 0},
		{"oversized chunk", 1, 12 * 1024 * 1024},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.AcceptChunk(ctx, session, tc.partNumber, bytes.NewReader(nil), tc.size)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}

	store.AssertNotCalled(t, "PutPart", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAcceptChunk_TerminalSession(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	require.NoError(t, db.Model(session).Update("status", types.UploadStatusAborted).Error)

	_, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 1024)
	var terminalErr *SessionTerminalError
	require.ErrorAs(t, err, &terminalErr)
	assert.Equal(t, types.UploadStatusAborted, terminalErr.Status)
	store.AssertNotCalled(t, "PutPart", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAcceptChunk_UpstreamFailureLeavesSessionUnchanged(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	store.On("PutPart", mock.Anything, mock.Anything, mock.Anything, int32(1), mock.Anything, mock.Anything).
		Return("", fmt.Errorf("connection reset")).Once()

	_, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 1024)
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "put part", upstreamErr.Op)

	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), fresh.UploadedChunks)
	assert.Empty(t, fresh.PartRecords)
}

func TestAcceptChunk_ConcurrentDistinctParts(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	for part := int32(1); part <= 3; part++ {
		store.On("PutPart", mock.Anything, mock.Anything, mock.Anything, part, mock.Anything, mock.Anything).
			Return(fmt.Sprintf("etag-%d", part), nil).Once()
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.AcceptChunk(ctx, session, int32(i+1), bytes.NewReader(nil), 1024)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Every part must survive the concurrent appends
	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fresh.UploadedChunks)
	for part := int32(1); part <= 3; part++ {
		record, ok := fresh.PartRecords.Find(part)
		require.True(t, ok, "part %d missing", part)
		assert.Equal(t, fmt.Sprintf("etag-%d", part), record.ETag)
	}
}

func TestComplete_OutOfOrderParts(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	for part := int32(1); part <= 3; part++ {
		store.On("PutPart", mock.Anything, mock.Anything, mock.Anything, part, mock.Anything, mock.Anything).
			Return(fmt.Sprintf("etag-%d", part), nil).Once()
	}

	// Arrival order carries no meaning
	for _, part := range []int32{2, 1, 3} {
		_, err := service.AcceptChunk(ctx, session, part, bytes.NewReader(nil), 1024)
		require.NoError(t, err)
	}

	store.On("Complete", mock.Anything, mock.Anything, "remote-upload-1", mock.MatchedBy(func(parts []types.PartRecord) bool {
		if len(parts) != 3 {
			return false
		}
		for i, p := range parts {
			if p.PartNumber != int32(i+1) {
				return false
			}
		}
		return true
	})).Return("final-etag", nil).Once()

	asset, err := service.Complete(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "final-etag", asset.ETag)
	assert.Equal(t, "video.mp4", asset.Filename)
	assert.Equal(t, int64(25_000_000), asset.Size)
	assert.Equal(t, user.ID, asset.OwnerID)

	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusCompleted, fresh.Status)
	store.AssertExpectations(t)
}

func TestComplete_Incomplete(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 25_000_000)
	ctx := context.Background()

	store.On("PutPart", mock.Anything, mock.Anything, mock.Anything, int32(1), mock.Anything, mock.Anything).
		Return("etag-1", nil).Once()
	_, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 1024)
	require.NoError(t, err)

	_, err = service.Complete(ctx, session)
	var incompleteErr *IncompleteUploadError
	require.ErrorAs(t, err, &incompleteErr)
	assert.Equal(t, int32(1), incompleteErr.Uploaded)
	assert.Equal(t, int32(3), incompleteErr.Total)

	// The session must remain resumable
	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusUploading, fresh.Status)
	store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestComplete_UpstreamFailureCompensates(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 100)
	ctx := context.Background()

	store.On("PutPart", mock.Anything, mock.Anything, mock.Anything, int32(1), mock.Anything, mock.Anything).
		Return("etag-1", nil).Once()
	_, err := service.AcceptChunk(ctx, session, 1, bytes.NewReader(nil), 100)
	require.NoError(t, err)

	store.On("Complete", mock.Anything, mock.Anything, "remote-upload-1", mock.Anything).
		Return("", fmt.Errorf("invalid part")).Once()
	store.On("Abort", mock.Anything, mock.Anything, "remote-upload-1").Return(nil).Once()

	_, err = service.Complete(ctx, session)
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "complete", upstreamErr.Op)

	// The remote upload was aborted and the session closed out
	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusAborted, fresh.Status)
	store.AssertExpectations(t)

	var assetCount int64
	require.NoError(t, db.Model(&types.Asset{}).Count(&assetCount).Error)
	assert.Zero(t, assetCount)
}

func TestComplete_TerminalSession(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 100)

	require.NoError(t, db.Model(session).Update("status", types.UploadStatusCompleted).Error)

	_, err := service.Complete(context.Background(), session)
	var terminalErr *SessionTerminalError
	require.ErrorAs(t, err, &terminalErr)
	store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAbort_Success(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 100)
	ctx := context.Background()

	store.On("Abort", mock.Anything, mock.Anything, "remote-upload-1").Return(nil).Once()

	require.NoError(t, service.Abort(ctx, session))

	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusAborted, fresh.Status)
	store.AssertExpectations(t)
}

func TestAbort_Idempotent(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 100)
	ctx := context.Background()

	store.On("Abort", mock.Anything, mock.Anything, "remote-upload-1").Return(nil).Once()

	require.NoError(t, service.Abort(ctx, session))
	require.NoError(t, service.Abort(ctx, session))
	store.AssertNumberOfCalls(t, "Abort", 1)
}

func TestAbort_CompletedSession(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 100)

	require.NoError(t, db.Model(session).Update("status", types.UploadStatusCompleted).Error)

	err := service.Abort(context.Background(), session)
	var terminalErr *SessionTerminalError
	require.ErrorAs(t, err, &terminalErr)
	assert.Equal(t, types.UploadStatusCompleted, terminalErr.Status)
	store.AssertNotCalled(t, "Abort", mock.Anything, mock.Anything, mock.Anything)
}

func TestAbort_UpstreamFailureLeavesStatus(t *testing.T) {
	service, db, store := setupTestService(t)
	user := createTestUser(t, db)
	session := initTestSession(t, service, store, user.ID, 100)
	ctx := context.Background()

	store.On("Abort", mock.Anything, mock.Anything, "remote-upload-1").
		Return(fmt.Errorf("connection refused")).Once()

	err := service.Abort(ctx, session)
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)

	// Status is untouched so the abort can be retried
	fresh, err := service.GetSession(ctx, session.SessionToken, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusPending, fresh.Status)
}
