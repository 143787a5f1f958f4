// Package attachments is the object-storage collaborator: store a blob, get
// back an opaque handle, resolve a handle to a short-lived URL. The sync
// core never touches it; the upload UI talks to it over the HTTP surface.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

const defaultResolveTTL = 15 * time.Minute

// Service stores board attachments in an S3-compatible bucket.
type Service struct {
	object *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewService constructs the attachment service for the given bucket.
func NewService(object *minio.Client, bucket string, logger zerolog.Logger) *Service {
	return &Service{object: object, bucket: bucket, logger: logger}
}

// Upload stores the blob and returns the handle used to reference it from
// board nodes. The original filename is kept as object metadata only; the
// handle itself is opaque.
func (s *Service) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.object == nil {
		return "", fmt.Errorf("object storage not configured")
	}

	handle := fmt.Sprintf("attachments/%s%s", uuid.NewString(), path.Ext(filename))
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"filename": filename},
	}
	if _, err := s.object.PutObject(ctx, s.bucket, handle, r, size, opts); err != nil {
		return "", fmt.Errorf("upload attachment: %w", err)
	}

	s.logger.Info().Str("handle", handle).Int64("size", size).Msg("attachment stored")
	return handle, nil
}

// Delete removes the blob behind the handle.
func (s *Service) Delete(ctx context.Context, handle string) error {
	if s.object == nil {
		return fmt.Errorf("object storage not configured")
	}
	if err := s.object.RemoveObject(ctx, s.bucket, handle, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// Resolve returns a short-lived download URL for the handle.
func (s *Service) Resolve(ctx context.Context, handle string) (*url.URL, error) {
	if s.object == nil {
		return nil, fmt.Errorf("object storage not configured")
	}
	u, err := s.object.PresignedGetObject(ctx, s.bucket, handle, defaultResolveTTL, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("resolve attachment: %w", err)
	}
	return u, nil
}
