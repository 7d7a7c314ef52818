package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/rs/zerolog/log"
)

// S3Store implements Client against S3 or an S3-compatible endpoint
// (MinIO, R2)
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a new S3-backed object store client
func NewS3Store(cfg *config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		Region:      cfg.Region,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("object store client initialized")

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Begin opens a multipart upload and returns the remote upload id
func (s *S3Store) Begin(ctx context.Context, key, contentType string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to create multipart upload")
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}

	uploadID := aws.ToString(out.UploadId)
	log.Debug().Str("key", key).Str("upload_id", uploadID).Msg("multipart upload created")
	return uploadID, nil
}

// PutPart uploads one numbered part and returns its etag
func (s *S3Store) PutPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	startTime := time.Now()

	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		log.Error().Err(err).
			Str("key", key).
			Str("upload_id", uploadID).
			Int32("part_number", partNumber).
			Msg("failed to upload part")
		return "", fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}

	etag := aws.ToString(out.ETag)
	log.Debug().
		Str("key", key).
		Int32("part_number", partNumber).
		Int64("size", size).
		Dur("duration", time.Since(startTime)).
		Msg("part uploaded")

	return etag, nil
}

// Complete finalizes a multipart upload from the recorded part etags
func (s *S3Store) Complete(ctx context.Context, key, uploadID string, parts []types.PartRecord) (string, error) {
	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, s3types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}

	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		log.Error().Err(err).
			Str("key", key).
			Str("upload_id", uploadID).
			Int("parts", len(parts)).
			Msg("failed to complete multipart upload")
		return "", fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	etag := aws.ToString(out.ETag)
	log.Info().
		Str("key", key).
		Str("upload_id", uploadID).
		Int("parts", len(parts)).
		Msg("multipart upload completed")

	return etag, nil
}

// Abort discards a multipart upload. A NoSuchUpload response means the
// upload is already gone (aborted or completed) and is treated as success.
func (s *S3Store) Abort(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *s3types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			log.Debug().Str("key", key).Str("upload_id", uploadID).Msg("multipart upload already gone")
			return nil
		}
		log.Error().Err(err).Str("key", key).Str("upload_id", uploadID).Msg("failed to abort multipart upload")
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}

	log.Info().Str("key", key).Str("upload_id", uploadID).Msg("multipart upload aborted")
	return nil
}

// Get retrieves a stored object
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to get object")
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Head returns the size of a stored object
func (s *S3Store) Head(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("object not found: %s", key)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Delete removes a stored object
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to delete object")
		return fmt.Errorf("failed to delete object: %w", err)
	}

	log.Info().Str("key", key).Msg("object deleted")
	return nil
}
