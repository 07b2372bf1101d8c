// Package objectstore talks to S3-compatible buckets for mirrors and artifact publishing.
package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client wraps a minio client bound to one bucket.
type Client struct {
	mc  *minio.Client
	cfg Config
}

// NewMinIOClient creates a minio client for cfg.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	if cfg.AccessKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}
	return minio.New(cfg.Endpoint, opts)
}

// New creates a bucket-bound Client.
func New(cfg Config) (*Client, error) {
	mc, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc, cfg: cfg}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// List returns the sorted keys under prefix whose base name matches the glob pattern.
func (c *Client) List(ctx context.Context, prefix, pattern string) ([]string, error) {
	keys, err := matchKeys(ctx, func(ctx context.Context) <-chan minio.ObjectInfo {
		return c.mc.ListObjects(ctx, c.cfg.Bucket, minio.ListObjectsOptions{
			Prefix:    c.cfg.Key(prefix),
			Recursive: true,
		})
	}, pattern)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", c.cfg.Bucket, prefix, err)
	}
	return keys, nil
}

// matchKeys drains a listing and keeps the keys whose base name matches pattern.
// The listing's context is cancelled on return so its producer never blocks.
func matchKeys(ctx context.Context, list func(context.Context) <-chan minio.ObjectInfo, pattern string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range list(ctx) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		ok, err := path.Match(pattern, path.Base(obj.Key))
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Download fetches key into dir and returns the local path.
func (c *Client) Download(ctx context.Context, key, dir string) (string, error) {
	dst := filepath.Join(dir, path.Base(key))
	if err := c.mc.FGetObject(ctx, c.cfg.Bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("get %s/%s: %w", c.cfg.Bucket, key, err)
	}
	return dst, nil
}

// Upload stores the local file under the configured prefix and returns its key.
func (c *Client) Upload(ctx context.Context, file string) (string, error) {
	key := c.cfg.Key(filepath.Base(file))
	_, err := c.mc.FPutObject(ctx, c.cfg.Bucket, key, file, minio.PutObjectOptions{
		ContentType: "application/x-netcdf",
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", c.cfg.Bucket, key, err)
	}
	return key, nil
}

// EnsureBucket creates the bucket when it is missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return c.mc.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{Region: c.cfg.Region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
