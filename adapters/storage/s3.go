package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// S3Client defines the minimal object-store interface used by the adapter.
// Inject an aws-sdk-go-v2 or MinIO client wrapper in production.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, meta map[string]string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
}

// S3 is the StorageAdapter backed by S3 or an S3-compatible store. A key's
// Bucket is used as an object prefix inside the configured bucket, so batch
// output locations map onto "directories".
type S3 struct {
	client S3Client
	bucket string
}

// NewS3 creates an S3 adapter. client must not be nil.
func NewS3(client S3Client, bucket string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 storage: client must not be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket must not be empty")
	}
	return &S3{client: client, bucket: bucket}, nil
}

func (s *S3) objectKey(key core.StorageKey) string {
	prefix := strings.Trim(key.Bucket, "/")
	if prefix == "" || prefix == "." {
		return strings.TrimPrefix(key.Path, "/")
	}
	return path.Join(prefix, key.Path)
}

func (s *S3) Put(ctx context.Context, key core.StorageKey, r io.Reader, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.put", err)
	}
	if err := s.client.PutObject(ctx, s.bucket, s.objectKey(key), r, meta); err != nil {
		return apperrors.Transient("s3.put", fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err))
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.get", err)
	}
	rc, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key))
	if err != nil {
		return nil, apperrors.Transient("s3.get", err)
	}
	return rc, nil
}

func (s *S3) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.delete", err)
	}
	if err := s.client.DeleteObject(ctx, s.bucket, s.objectKey(key)); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.delete", err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "s3.exists", err)
	}
	ok, err := s.client.HeadObject(ctx, s.bucket, s.objectKey(key))
	if err != nil {
		return false, apperrors.Transient("s3.exists", err)
	}
	return ok, nil
}

// Path returns the object URL a key is written to.
func (s *S3) Path(key core.StorageKey) string {
	return "s3://" + s.bucket + "/" + s.objectKey(key)
}

var _ core.StorageAdapter = (*S3)(nil)
