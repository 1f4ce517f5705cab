package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

const objectScheme = "s3://"

// Location names either a local file or an object in a bucket.
type Location struct {
	Path   string
	Bucket string
	Key    string
}

func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("location is required")
	}
	if !strings.HasPrefix(raw, objectScheme) {
		return Location{Path: raw}, nil
	}
	bucket, key, _ := strings.Cut(strings.TrimPrefix(raw, objectScheme), "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid location %q: bucket is required", raw)
	}
	if strings.TrimSpace(key) == "" {
		return Location{}, fmt.Errorf("invalid location %q: object key is required", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func (l Location) IsObject() bool {
	return l.Bucket != ""
}

// Dir is the directory a local document lives in. Objects have none.
func (l Location) Dir() string {
	if l.IsObject() {
		return ""
	}
	return path.Dir(strings.ReplaceAll(l.Path, "\\", "/"))
}

func (l Location) Ext() string {
	if l.IsObject() {
		return path.Ext(l.Key)
	}
	return path.Ext(strings.ReplaceAll(l.Path, "\\", "/"))
}

func (l Location) String() string {
	if l.IsObject() {
		return objectScheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}
