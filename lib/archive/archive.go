// Package archive uploads finished run files to S3-compatible object
// storage.
package archive

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string // skips bucket location lookups when set
	Secure    bool
}

// Uploader copies run files into a bucket under <prefix>/<sample>/<file>.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// New connects to the object store described by cfg.
func New(cfg Config, log zerolog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, log: log}, nil
}

// Upload stores each file, creating the bucket on first use.
func (u *Uploader) Upload(ctx context.Context, sampleID string, files ...string) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", u.bucket, err)
		}
	}
	for _, f := range files {
		key := ObjectKey(u.prefix, sampleID, f)
		info, err := u.client.FPutObject(ctx, u.bucket, key, f, minio.PutObjectOptions{
			ContentType: ContentType(f),
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", f, err)
		}
		u.log.Info().Str("bucket", u.bucket).Str("key", key).Int64("size", info.Size).Msg("archived")
	}
	return nil
}

// ObjectKey returns the object name for file.
func ObjectKey(prefix, sampleID, file string) string {
	sample := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, sampleID)
	if sample == "" {
		sample = "unnamed"
	}
	return path.Join(strings.Trim(prefix, "/"), sample, filepath.Base(file))
}

// ContentType guesses the media type of a run file from its extension.
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
