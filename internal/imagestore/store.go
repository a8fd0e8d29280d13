package imagestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
)

// Store persists an object and returns its public URL
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// New picks the implementation from STORAGE_DRIVER
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageLocal:
		return NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
	case config.StorageBucket:
		return NewBucketStore(cfg, nil), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

// LocalStore writes under a date based directory and serves from /uploads
type LocalStore struct {
	baseDir    string
	publicBase string
	now        func() time.Time
}

// NewLocalStore creates the upload directory if needed
func NewLocalStore(baseDir, publicBase string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", baseDir, err)
	}
	return &LocalStore{
		baseDir:    baseDir,
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
	}, nil
}

// BaseDir is what the HTTP layer serves under /uploads
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) Put(ctx context.Context, name string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := path.Join(s.now().Format("2006/01/02"), name)
	full := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return s.URL(key), nil
}

// URL is the public URL of an object key
func (s *LocalStore) URL(key string) string {
	return s.publicBase + "/uploads/" + key
}

// Remove deletes the file behind a URL this store produced.
// URLs from elsewhere are ignored.
func (s *LocalStore) Remove(publicURL string) (bool, error) {
	prefix := s.publicBase + "/uploads/"
	if !strings.HasPrefix(publicURL, prefix) {
		return false, nil
	}
	key, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil {
		return false, err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return false, fmt.Errorf("refusing to remove %q outside upload directory", key)
	}
	if err := os.Remove(filepath.Join(s.baseDir, clean)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
