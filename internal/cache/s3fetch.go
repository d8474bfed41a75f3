package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/olivefarm/enginecore/internal/model"
)

// S3Getter is the narrow slice of the AWS SDK v2 S3 client MaterializeRemote
// needs, so tests can substitute a fake.
type S3Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// MaterializeRemote downloads an s3://bucket/key resource into
// <cache_dir>/downloads/<hash>/<basename> and returns the local path.
// Per §4.5/§4.7, this is the one materialization step whose failure
// propagates rather than degrading silently: a pass cannot run at all
// without its input.
func (c *Cache) MaterializeRemote(ctx context.Context, client S3Getter, resourceURI string) (string, error) {
	bucket, key, err := parseS3URI(resourceURI)
	if err != nil {
		return "", fmt.Errorf("cache: materialize %s: %w", resourceURI, err)
	}

	h := sha256.Sum256([]byte(resourceURI))
	dir := filepath.Join(c.dir, downloadsDir, hex.EncodeToString(h[:])[:16])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cache: materialize %s: %w", resourceURI, err)
	}
	localPath := filepath.Join(dir, filepath.Base(key))

	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return "", fmt.Errorf("cache: materialize %s: get object: %w", resourceURI, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("cache: materialize %s: %w", resourceURI, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return "", fmt.Errorf("cache: materialize %s: write: %w", resourceURI, err)
	}
	return localPath, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3:// resource: %q", uri)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 uri: %q", uri)
	}
	return bucket, key, nil
}

// IsRemote reports whether a resource path names a remote (non-local)
// resource requiring materialization before a local-like host can use it.
func IsRemote(resourcePath string) bool {
	return strings.HasPrefix(resourcePath, "s3://")
}

// RemoteMaterializer satisfies executor.Materializer and evaluator.Materializer
// by routing through Cache.MaterializeRemote, so a local-like host or
// evaluation target can run against an s3:// model resource without either
// package importing the AWS SDK directly.
type RemoteMaterializer struct {
	Cache  *Cache
	Client S3Getter
}

// Materialize downloads m's resource path (if remote) and rehomes m onto
// the local path, per §4.5/§4.7's "model materialization" step.
func (r *RemoteMaterializer) Materialize(ctx context.Context, m model.Model) error {
	local, err := r.Cache.MaterializeRemote(ctx, r.Client, m.ResourcePath())
	if err != nil {
		return err
	}
	m.SetLocalPath(local)
	return nil
}
