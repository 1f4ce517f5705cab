package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// BucketOpener returns a store scoped to one bucket.
type BucketOpener func(ctx context.Context, bucket string) (ObjectStore, error)

// Files reads documents and writes artifacts to local paths or object storage.
type Files struct {
	fs         afero.Fs
	openBucket BucketOpener
}

func NewFiles(fs afero.Fs, openBucket BucketOpener) *Files {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Files{fs: fs, openBucket: openBucket}
}

func (f *Files) Read(ctx context.Context, loc Location) ([]byte, error) {
	if !loc.IsObject() {
		data, err := afero.ReadFile(f.fs, loc.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("file not found: %s", loc.Path)
			}
			return nil, fmt.Errorf("read %s: %w", loc.Path, err)
		}
		return data, nil
	}

	store, err := f.bucket(ctx, loc.Bucket)
	if err != nil {
		return nil, err
	}
	reader, err := store.Get(ctx, loc.Key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("file not found: %s", loc)
		}
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return data, nil
}

func (f *Files) Write(ctx context.Context, loc Location, data []byte, contentType string) error {
	if !loc.IsObject() {
		if dir := filepath.Dir(loc.Path); dir != "." {
			if err := f.fs.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
		if err := afero.WriteFile(f.fs, loc.Path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", loc.Path, err)
		}
		return nil
	}

	store, err := f.bucket(ctx, loc.Bucket)
	if err != nil {
		return err
	}
	if _, err := store.Put(ctx, loc.Key, bytes.NewReader(data), int64(len(data)), PutOptions{ContentType: contentType}); err != nil {
		return err
	}
	return nil
}

func (f *Files) bucket(ctx context.Context, bucket string) (ObjectStore, error) {
	if f.openBucket == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}
	store, err := f.openBucket(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucket, err)
	}
	return store, nil
}
