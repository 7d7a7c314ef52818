package upload

import (
	"errors"
	"fmt"

	"github.com/mediavault/mediavault/pkg/types"
)

// ErrSessionNotFound covers both an unknown session token and a token
// owned by a different user. The two cases are deliberately
// indistinguishable so callers cannot probe for foreign sessions.
var ErrSessionNotFound = errors.New("upload session not found")

// ValidationError reports malformed or out-of-range client input.
// It is never worth retrying unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError reports a failed object store call. The wrapped cause
// is kept for logging; the same operation is safe to retry.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("object store %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IncompleteUploadError reports a completion attempt before all parts
// landed
type IncompleteUploadError struct {
	Uploaded int32
	Total    int32
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("upload incomplete: %d of %d chunks received", e.Uploaded, e.Total)
}

// SessionTerminalError reports an operation against a session that
// already reached a terminal status
type SessionTerminalError struct {
	Status types.UploadStatus
}

func (e *SessionTerminalError) Error() string {
	return fmt.Sprintf("upload session is already %s", e.Status)
}
