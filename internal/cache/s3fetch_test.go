package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3Getter struct {
	gets int
	body string
	err  error
}

func (f *fakeS3Getter) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(f.body))}, nil
}

func TestMaterializeRemote_DownloadsOnce(t *testing.T) {
	c := newTestCache(t)
	client := &fakeS3Getter{body: "weights"}

	path, err := c.MaterializeRemote(context.Background(), client, "s3://my-models/llama/weights.bin")
	if err != nil {
		t.Fatalf("MaterializeRemote: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read materialized file: %v", err)
	}
	if string(data) != "weights" {
		t.Errorf("materialized content = %q, want %q", data, "weights")
	}
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %q", path)
	}

	// Second call for the same resource is a cache hit: no second GetObject.
	path2, err := c.MaterializeRemote(context.Background(), client, "s3://my-models/llama/weights.bin")
	if err != nil {
		t.Fatalf("MaterializeRemote (2nd): %v", err)
	}
	if path2 != path {
		t.Errorf("second materialization returned a different path: %q vs %q", path2, path)
	}
	if client.gets != 1 {
		t.Errorf("GetObject called %d times, want 1", client.gets)
	}
}

func TestMaterializeRemote_NotS3URI(t *testing.T) {
	c := newTestCache(t)
	if _, err := c.MaterializeRemote(context.Background(), &fakeS3Getter{}, "/local/path"); err == nil {
		t.Fatal("expected error for non-s3 resource path")
	}
}

func TestRemoteMaterializer_RehomesModel(t *testing.T) {
	c := newTestCache(t)
	client := &fakeS3Getter{body: "onnx-bytes"}
	rm := &RemoteMaterializer{Cache: c, Client: client}

	m := &fakeModel{local: "s3://bucket/model.onnx"}
	if err := rm.Materialize(context.Background(), m); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if m.local == "s3://bucket/model.onnx" || m.local == "" {
		t.Errorf("model was not rehomed to a local path, got %q", m.local)
	}
	if _, err := os.Stat(m.local); err != nil {
		t.Errorf("rehomed path does not exist on disk: %v", err)
	}
}
