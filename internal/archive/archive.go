// Package archive uploads persisted trace directories to S3-compatible
// object storage.
//
// Object keys mirror the artifacts layout under a per-run prefix:
//
//	<prefix>/<run-id>/<backend-id>/traces/<function>/call_0/input_0.json
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config locates the bucket.
type Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket" validate:"required_with=Endpoint"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// ObjectPutter is the subset of *minio.Client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient connects to the endpoint and creates the bucket if it does not
// exist yet.
func NewClient(ctx context.Context, cfg Config) (*minio.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return client, nil
}

// Uploader copies trace directories into a bucket.
type Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewUploader returns an uploader writing under prefix in bucket. A nil
// logger discards output.
func NewUploader(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Uploader{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectKey joins prefix, run id and a slash-separated path relative to the
// artifacts root. Empty segments are dropped.
func ObjectKey(prefix, runID, rel string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{strings.Trim(prefix, "/"), runID, filepath.ToSlash(rel)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return path.Join(parts...)
}

// UploadDir uploads every regular file under dir. Keys are relative to root,
// which must contain dir, so the artifacts layout is preserved. It returns
// the uploaded keys in walk order.
func (u *Uploader) UploadDir(ctx context.Context, runID, root, dir string) ([]string, error) {
	if _, err := filepath.Rel(root, dir); err != nil {
		return nil, fmt.Errorf("upload %s: %w", dir, err)
	}
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%s is outside %s", p, root)
		}
		key := ObjectKey(u.prefix, runID, rel)
		if err := u.uploadFile(ctx, p, key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, fmt.Errorf("upload %s: %w", dir, err)
	}
	u.logger.Info("archived trace", "dir", dir, "bucket", u.bucket, "objects", len(keys))
	return keys, nil
}

func (u *Uploader) uploadFile(ctx context.Context, p, key string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = u.client.PutObject(ctx, u.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(p),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	u.logger.Debug("uploaded object", "key", key, "bytes", info.Size())
	return nil
}

func contentType(p string) string {
	switch filepath.Ext(p) {
	case ".json":
		return "application/json"
	case ".txt", "":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
