package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	IsAdmin   bool      `json:"is_admin" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// APIKey represents an API key for programmatic access
type APIKey struct {
	ID         uuid.UUID  `json:"id" gorm:"primaryKey"`
	UserID     uuid.UUID  `json:"user_id" gorm:"not null"`
	Name       string     `json:"name" gorm:"not null"`
	KeyHash    string     `json:"-" gorm:"not null;uniqueIndex"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	IsActive   bool       `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	User       User       `json:"user" gorm:"foreignKey:UserID"`
}

// BeforeCreate generates a UUID for the API key ID
func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// UploadStatus is the lifecycle state of an upload session
type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusFailed    UploadStatus = "failed"
	UploadStatusAborted   UploadStatus = "aborted"
)

// IsTerminal reports whether no further mutation of the session is allowed.
// The failed status is only ever set by operator action, never by the
// request path, but once set it is just as final.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusAborted || s == UploadStatusFailed
}

// PartRecord is one accepted part of a multipart upload
type PartRecord struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// PartRecordList is stored on the session row in arrival order,
// unique by part number
type PartRecordList []PartRecord

// Find returns the record for the given part number, if present
func (l PartRecordList) Find(partNumber int32) (PartRecord, bool) {
	for _, p := range l {
		if p.PartNumber == partNumber {
			return p, true
		}
	}
	return PartRecord{}, false
}

// UploadSession tracks one in-progress chunked upload.
// SessionToken is the client-facing correlation id; UploadID is the
// remote multipart upload handle. Both are immutable after creation,
// as is StorageKey.
type UploadSession struct {
	ID             uuid.UUID      `json:"id" gorm:"primaryKey"`
	SessionToken   string         `json:"session_token" gorm:"uniqueIndex;not null"`
	UploadID       string         `json:"upload_id" gorm:"uniqueIndex;not null"`
	Filename       string         `json:"filename" gorm:"not null"`
	MimeType       string         `json:"mime_type" gorm:"not null"`
	FileSize       int64          `json:"file_size" gorm:"not null"`
	StorageKey     string         `json:"-" gorm:"not null"`
	ChunkSize      int64          `json:"chunk_size" gorm:"not null"`
	TotalChunks    int32          `json:"total_chunks" gorm:"not null"`
	UploadedChunks int32          `json:"uploaded_chunks" gorm:"default:0"`
	PartRecords    PartRecordList `json:"-" gorm:"serializer:json"`
	Status         UploadStatus   `json:"status" gorm:"not null;default:'pending';index"`
	OwnerID        uuid.UUID      `json:"owner_id" gorm:"not null;index"`
	LastActivityAt time.Time      `json:"last_activity_at" gorm:"not null;index"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BeforeCreate generates a UUID for the session ID
func (s *UploadSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Asset represents a stored catalog entry, created once per completed upload
type Asset struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey"`
	Filename   string    `json:"filename" gorm:"not null;index"`
	MimeType   string    `json:"mime_type" gorm:"not null"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	StorageKey string    `json:"-" gorm:"not null;uniqueIndex"`
	Width      *int      `json:"width,omitempty"`
	Height     *int      `json:"height,omitempty"`
	OwnerID    uuid.UUID `json:"owner_id" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Owner      User      `json:"owner" gorm:"foreignKey:OwnerID"`
}

// BeforeCreate generates a UUID for the asset ID
func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Setting is one key-value configuration row
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value" gorm:"not null"`
	UpdatedBy uuid.UUID `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssetFilter for searching assets
type AssetFilter struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// AuthToken represents a JWT token
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// InitUploadRequest starts a new chunked upload session
type InitUploadRequest struct {
	Filename     string `json:"filename" binding:"required"`
	MimeType     string `json:"mime_type" binding:"required"`
	DeclaredSize int64  `json:"declared_size" binding:"required"`
	Folder       string `json:"folder"`
}

// InitUploadResponse is returned to the client after initiate.
// The storage key is deliberately not exposed.
type InitUploadResponse struct {
	SessionToken string `json:"session_token"`
	UploadID     string `json:"upload_id"`
	ChunkSize    int64  `json:"chunk_size"`
	TotalChunks  int32  `json:"total_chunks"`
}

// ChunkResponse acknowledges one accepted (or replayed) part
type ChunkResponse struct {
	PartNumber     int32  `json:"part_number"`
	ETag           string `json:"etag"`
	UploadedChunks int32  `json:"uploaded_chunks"`
	TotalChunks    int32  `json:"total_chunks"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	APIResponse
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}
