// Package storage persists source PDFs and raw parse results to one of two
// interchangeable backends: a local directory or S3-compatible object
// storage. Locators are plain paths for local files and s3://bucket/key URIs
// for objects.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3Scheme = "s3://"

// Backend stores and retrieves blobs addressed by locator.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, locator string) (io.ReadCloser, error)
	// Delete is idempotent, a missing blob counts as success.
	Delete(ctx context.Context, locator string) (bool, error)
}

// LocalBackend stores blobs under a root directory, keyed by relative path.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	path := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (b *LocalBackend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	return os.Open(locator)
}

func (b *LocalBackend) Delete(ctx context.Context, locator string) (bool, error) {
	err := os.Remove(locator)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

// S3Backend stores blobs in one bucket of an S3-compatible service.
type S3Backend struct {
	client *minio.Client
	bucket string
}

func NewS3Backend(endpoint, accessKey, secretKey, region, bucket string, useSSL bool) (*S3Backend, error) {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &S3Backend{client: client, bucket: bucket}, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return s3Scheme + b.bucket + "/" + key, nil
}

func (b *S3Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	bucket, key, err := parseS3Locator(locator)
	if err != nil {
		return nil, err
	}
	return b.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

func (b *S3Backend) Delete(ctx context.Context, locator string) (bool, error) {
	bucket, key, err := parseS3Locator(locator)
	if err != nil {
		return false, err
	}
	// RemoveObject succeeds for missing keys, which is the idempotent
	// behavior the pipeline relies on.
	if err := b.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

// IsS3Locator reports whether locator points into object storage.
func IsS3Locator(locator string) bool {
	return strings.HasPrefix(locator, s3Scheme)
}

func parseS3Locator(locator string) (bucket, key string, err error) {
	if !IsS3Locator(locator) {
		return "", "", fmt.Errorf("invalid S3 locator: %s", locator)
	}
	parts := strings.SplitN(locator[len(s3Scheme):], "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 locator format: %s", locator)
	}
	return parts[0], parts[1], nil
}
