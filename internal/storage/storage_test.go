package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		raw  string
		want Location
	}{
		{raw: "reports/q1.modelsql", want: Location{Path: "reports/q1.modelsql"}},
		{raw: " s3://team-bucket/runs/out.json ", want: Location{Bucket: "team-bucket", Key: "runs/out.json"}},
	}
	for _, tc := range cases {
		got, err := ParseLocation(tc.raw)
		if err != nil {
			t.Fatalf("ParseLocation(%q) error = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLocation(%q) = %#v, want %#v", tc.raw, got, tc.want)
		}
	}
}

func TestParseLocationRejectsIncompleteObjects(t *testing.T) {
	for _, raw := range []string{"", "s3://", "s3://bucket", "s3://bucket/"} {
		if _, err := ParseLocation(raw); err == nil {
			t.Fatalf("ParseLocation(%q) expected error", raw)
		}
	}
}

func TestLocationDirAndExt(t *testing.T) {
	local := Location{Path: "models/flights.model"}
	if local.Dir() != "models" || local.Ext() != ".model" {
		t.Fatalf("Dir/Ext = %q/%q", local.Dir(), local.Ext())
	}
	object := Location{Bucket: "b", Key: "docs/q.modelsql"}
	if object.Dir() != "" || object.Ext() != ".modelsql" {
		t.Fatalf("Dir/Ext = %q/%q", object.Dir(), object.Ext())
	}
	if object.String() != "s3://b/docs/q.modelsql" {
		t.Fatalf("String() = %q", object.String())
	}
}

func TestFilesLocalRoundTrip(t *testing.T) {
	files := NewFiles(afero.NewMemMapFs(), nil)
	loc := Location{Path: "out/run.json"}
	if err := files.Write(context.Background(), loc, []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := files.Read(context.Background(), loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("Read() = %q", string(data))
	}
}

func TestFilesReadMissingLocalFile(t *testing.T) {
	files := NewFiles(afero.NewMemMapFs(), nil)
	_, err := files.Read(context.Background(), Location{Path: "nope.modelsql"})
	if err == nil || !strings.Contains(err.Error(), "file not found: nope.modelsql") {
		t.Fatalf("Read() error = %v", err)
	}
}

func TestFilesObjectRoundTrip(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	var opened string
	files := NewFiles(afero.NewMemMapFs(), func(_ context.Context, bucket string) (ObjectStore, error) {
		opened = bucket
		return store, nil
	})
	loc := Location{Bucket: "runs", Key: "2026/out.json"}
	if err := files.Write(context.Background(), loc, []byte("[]"), "application/json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if opened != "runs" || store.contentType != "application/json" {
		t.Fatalf("bucket/contentType = %q/%q", opened, store.contentType)
	}
	data, err := files.Read(context.Background(), loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("Read() = %q", string(data))
	}
	if _, err := files.Read(context.Background(), Location{Bucket: "runs", Key: "missing"}); err == nil {
		t.Fatal("expected missing object error")
	}
}

func TestFilesObjectWithoutOpener(t *testing.T) {
	files := NewFiles(afero.NewMemMapFs(), nil)
	if _, err := files.Read(context.Background(), Location{Bucket: "b", Key: "k"}); err == nil {
		t.Fatal("expected configuration error")
	}
}

type memoryStore struct {
	objects     map[string][]byte
	contentType string
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.objects[key] = data
	m.contentType = opts.ContentType
	return ObjectInfo{Key: key, Size: size}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
