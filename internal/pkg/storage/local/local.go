package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/salescope/ingest/internal/pkg/provider"
)

// Storage reads files from a local directory
type Storage struct {
	root string
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
	return "local"
}

// ValidateConfig implements provider.Storage
func (s *Storage) ValidateConfig(cfg map[string]string) error {
	if cfg["path"] == "" {
		return fmt.Errorf("no path")
	}
	return nil
}

// TestConnection implements provider.Storage
func (s *Storage) TestConnection(ctx context.Context, cfg map[string]string) error {
	fi, err := os.Stat(cfg["path"])
	if err != nil {
		return fmt.Errorf("can't access '%s': %w", cfg["path"], err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("'%s' is not a directory", cfg["path"])
	}
	return nil
}

// Connect implements provider.Storage
func (s *Storage) Connect(ctx context.Context, cfg map[string]string) error {
	if err := s.TestConnection(ctx, cfg); err != nil {
		return err
	}
	s.root = cfg["path"]
	return nil
}

// ListFiles returns regular files under path, non-recursive
func (s *Storage) ListFiles(ctx context.Context, path string) ([]provider.FileInfo, error) {
	dir := s.resolve(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("can't read dir '%s': %w", dir, err)
	}
	res := make([]provider.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			goapp.Log.Warn().Err(err).Str("file", e.Name()).Msg("can't stat")
			continue
		}
		res = append(res, provider.FileInfo{Name: e.Name(),
			Path: filepath.Join(dir, e.Name()), Size: info.Size(), Modified: info.ModTime()})
	}
	return res, nil
}

// DownloadFile copies remotePath into localPath
func (s *Storage) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	src, err := os.Open(s.resolve(remotePath))
	if err != nil {
		return fmt.Errorf("can't open '%s': %w", remotePath, err)
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("can't create dir: %w", err)
	}
	dst, err := os.OpenFile(localPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("can't create '%s': %w", localPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("can't copy '%s': %w", remotePath, err)
	}
	return nil
}

func (s *Storage) resolve(path string) string {
	if filepath.IsAbs(path) || s.root == "" {
		return path
	}
	return filepath.Join(s.root, path)
}
