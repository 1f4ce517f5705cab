//go:build integration

package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/modelsql/modelsql/internal/config"
	"github.com/modelsql/modelsql/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("MODELSQL_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("MODELSQL_TEST_S3_ENDPOINT is not set")
	}

	store, err := New(config.ObjectStoreConfig{
		Endpoint:        endpoint,
		Region:          envOr("MODELSQL_TEST_S3_REGION", "us-east-1"),
		AccessKeyID:     envOr("MODELSQL_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey: envOr("MODELSQL_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:          "integration-tests",
	}, envOr("MODELSQL_TEST_S3_BUCKET", "modelsql-it"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	files := storage.NewFiles(nil, func(context.Context, string) (storage.ObjectStore, error) { return store, nil })
	loc := storage.Location{Bucket: "unused", Key: "runs/roundtrip.json"}
	payload := []byte(`{"statement_0":{"sql":"SELECT 1"}}`)
	if err := files.Write(ctx, loc, payload, "application/json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	reader, err := store.Get(ctx, loc.Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q, want %q", string(got), string(payload))
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
