package minio

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/utils"
)

// Storage reads files from a minio/S3 bucket
type Storage struct {
	client *minio.Client
	bucket string
}

// NewStorage creates the instance
func NewStorage() *Storage {
	return &Storage{}
}

// New returns a fresh unconnected copy, used by the provider factory
func (s *Storage) New() provider.Storage {
	return NewStorage()
}

// Type implements provider.Storage
func (s *Storage) Type() string {
	return "minio"
}

// ValidateConfig implements provider.Storage
func (s *Storage) ValidateConfig(cfg map[string]string) error {
	for _, k := range []string{"url", "bucket", "user", "key"} {
		if cfg[k] == "" {
			return fmt.Errorf("no %s", k)
		}
	}
	return nil
}

// TestConnection implements provider.Storage
func (s *Storage) TestConnection(ctx context.Context, cfg map[string]string) error {
	cl, err := newClient(cfg)
	if err != nil {
		return err
	}
	ok, err := cl.BucketExists(ctx, cfg["bucket"])
	if err != nil {
		return fmt.Errorf("can't access minio at '%s': %w", cfg["url"], err)
	}
	if !ok {
		return fmt.Errorf("no bucket '%s'", cfg["bucket"])
	}
	return nil
}

// Connect implements provider.Storage
func (s *Storage) Connect(ctx context.Context, cfg map[string]string) error {
	cl, err := newClient(cfg)
	if err != nil {
		return err
	}
	s.client = cl
	s.bucket = cfg["bucket"]
	return nil
}

// ListFiles returns objects under the prefix, non-recursive
func (s *Storage) ListFiles(ctx context.Context, prefix string) ([]provider.FileInfo, error) {
	if s.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var res []provider.FileInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("can't list bucket '%s': %w", s.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		res = append(res, provider.FileInfo{Name: path.Base(obj.Key), Path: obj.Key,
			Size: obj.Size, Modified: obj.LastModified})
	}
	return res, nil
}

// DownloadFile fetches the object into localPath
func (s *Storage) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	if s.client == nil {
		return fmt.Errorf("not connected")
	}
	if err := s.client.FGetObject(ctx, s.bucket, remotePath, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("can't get object '%s': %w", remotePath, err)
	}
	return nil
}

func newClient(cfg map[string]string) (*minio.Client, error) {
	cl, err := minio.New(cfg["url"], &minio.Options{
		Creds:  credentials.NewStaticV4(cfg["user"], cfg["key"], ""),
		Secure: utils.ParamTrue(cfg["ssl"]),
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	return cl, nil
}
