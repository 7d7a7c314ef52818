package objectstore

import (
	"context"
	"io"

	"github.com/mediavault/mediavault/pkg/types"
)

// Client defines the object storage operations the upload pipeline
// depends on. Multipart semantics follow S3: parts are numbered
// 1..10000, each part upload returns an etag, and Complete stitches
// the parts into one object given the etags in ascending part order.
type Client interface {
	// Begin opens a multipart upload for the given key and returns
	// the remote upload id
	Begin(ctx context.Context, key, contentType string) (string, error)

	// PutPart uploads one numbered part and returns its etag
	PutPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error)

	// Complete finalizes a multipart upload. Parts must be strictly
	// ascending by part number with no gaps; the store rejects otherwise.
	Complete(ctx context.Context, key, uploadID string, parts []types.PartRecord) (string, error)

	// Abort discards a multipart upload. An upload that is already
	// aborted or completed is not an error.
	Abort(ctx context.Context, key, uploadID string) error

	// Get retrieves a stored object
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head returns the size of a stored object
	Head(ctx context.Context, key string) (int64, error)

	// Delete removes a stored object
	Delete(ctx context.Context, key string) error
}
