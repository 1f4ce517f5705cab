// Package s3 reads documents from and writes run output to s3:// locations on any
// S3-compatible endpoint.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/modelsql/modelsql/internal/config"
	"github.com/modelsql/modelsql/internal/storage"
)

// objectAPI is the slice of the S3 API a Store talks to.
type objectAPI interface {
	upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Store is one bucket. Keys are relative to the configured prefix.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

// Opener returns a storage.BucketOpener that connects to cfg.Endpoint on every open.
func Opener(cfg config.ObjectStoreConfig) storage.BucketOpener {
	return func(_ context.Context, bucket string) (storage.ObjectStore, error) {
		return New(cfg, bucket)
	}
}

func New(cfg config.ObjectStoreConfig, bucket string) (*Store, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store %s: %w", host, err)
	}
	return newStore(minioAPI{mc}, bucket, cfg.Prefix)
}

func newStore(api objectAPI, bucket, prefix string) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	return &Store{api: api, bucket: bucket, prefix: keyPrefix(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	objectKey, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.upload(ctx, s.bucket, objectKey, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("write %s: %w", s.location(objectKey), err)
	}
	return info, nil
}

// Get fails with storage.ErrObjectNotFound when the key or the bucket does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.download(ctx, s.bucket, objectKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.location(objectKey), err)
	}
	return body, nil
}

func (s *Store) location(objectKey string) string {
	return storage.Location{Bucket: s.bucket, Key: objectKey}.String()
}

// resolve maps a document key onto the bucket. Keys may not climb out of the prefix.
func (s *Store) resolve(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(s.prefix, cleaned), nil
}

func keyPrefix(raw string) string {
	cleaned := path.Clean("/" + strings.TrimSpace(raw))
	return strings.TrimPrefix(cleaned, "/")
}

// splitEndpoint accepts either host[:port] or a URL. An https URL forces TLS.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("MODELSQL_OBJECTSTORE_ENDPOINT is required for s3:// locations")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse object store endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("object store endpoint %q has no host", raw)
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

type minioAPI struct {
	client *minio.Client
}

func (m minioAPI) upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploaded, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{
		Key:          uploaded.Key,
		Size:         uploaded.Size,
		ETag:         uploaded.ETag,
		LastModified: uploaded.LastModified,
	}, nil
}

// GetObject is lazy, so the object is stat'ed before it is handed out.
func (m minioAPI) download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
