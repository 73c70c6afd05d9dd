// Package minio stores catalog snapshot documents in an S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/maraichr/sqlscope/internal/config"
)

// SnapshotPrefix is the key prefix all snapshot objects live under.
const SnapshotPrefix = "snapshots/"

type Client struct {
	mc     *minio.Client
	bucket string
}

func NewClient(cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{mc: mc, bucket: cfg.Bucket}, nil
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// SnapshotKey maps a snapshot name to its object key.
// e.g. "prod-sales" -> "snapshots/prod-sales.yaml"
func SnapshotKey(name string) string {
	if strings.HasPrefix(name, SnapshotPrefix) {
		return name
	}
	if path.Ext(name) == "" {
		name += ".yaml"
	}
	return SnapshotPrefix + name
}

// PutSnapshot uploads a snapshot document.
func (c *Client) PutSnapshot(ctx context.Context, name string, data []byte) error {
	key := SnapshotKey(name)
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return nil
}

// OpenSnapshot returns a reader over a stored snapshot document.
func (c *Client) OpenSnapshot(ctx context.Context, name string) (io.ReadCloser, error) {
	key := SnapshotKey(name)
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download snapshot %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key here rather than on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat snapshot %s: %w", key, err)
	}
	return obj, nil
}

// ListSnapshots returns the names of stored snapshots.
func (c *Client) ListSnapshots(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: SnapshotPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list snapshots: %w", obj.Err)
		}
		names = append(names, strings.TrimPrefix(obj.Key, SnapshotPrefix))
	}
	return names, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func contentType(key string) string {
	if path.Ext(key) == ".json" {
		return "application/json"
	}
	return "application/yaml"
}
